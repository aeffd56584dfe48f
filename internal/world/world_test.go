package world

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

func makeWorld(mod func(*Config)) *World {
	cfg := DefaultConfig()
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg, rand.New(rand.NewSource(7)))
}

func TestVitalsAlwaysClamped(t *testing.T) {
	w := makeWorld(nil)
	actions := []int{nodes.Flee, nodes.Hide, nodes.Observe, nodes.Explore, nodes.Eat, nodes.Rest, nodes.Sleep, 999}
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 500; i++ {
		res := w.Step(actions[rng.Intn(len(actions))])
		for name, v := range map[string]float64{"health": res.Health, "hunger": res.Hunger, "fatigue": res.Fatigue} {
			if v < 0 || v > 1 {
				t.Fatalf("step %d: %s=%.4f out of [0,1]", i, name, v)
			}
		}
	}
}

func TestDeathIsTerminal(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 1
		c.HazardMaxInterval = 1
		c.HazardDamageMin = 0.25
		c.HazardDamageMax = 0.25
	})

	for i := 0; i < 50 && !w.Dead(); i++ {
		w.Step(nodes.Observe)
	}
	if !w.Dead() {
		t.Fatal("expected death under constant hazard hits")
	}
	if w.Health() != 0 {
		t.Fatalf("expected health clamped to 0 at death, got %.4f", w.Health())
	}

	hunger, fatigue := w.Hunger(), w.Fatigue()
	res := w.Step(nodes.Eat)
	if res.Reward != 0 {
		t.Fatalf("dead world should yield zero reward, got %.4f", res.Reward)
	}
	if !res.Dead {
		t.Fatal("dead flag should stay set")
	}
	if res.Message != "agent is already dead" {
		t.Fatalf("unexpected dead message: %q", res.Message)
	}
	if w.Hunger() != hunger || w.Fatigue() != fatigue {
		t.Fatal("dead world must not mutate vitals")
	}
}

func TestStarvationAndExhaustionBothDrain(t *testing.T) {
	w := makeWorld(func(c *Config) {
		// keep hazards out of the way
		c.HazardMinInterval = 100
		c.HazardMaxInterval = 100
	})
	w.hunger = 0.01
	w.fatigue = 0.01

	// observe costs (0.02, 0.01): both vitals clamp to 0, both drains fire.
	// health = 1.0 - 0.05 - 0.03 = 0.92
	res := w.Step(nodes.Observe)

	if res.Health != 0.92 {
		t.Fatalf("expected health 0.92 after dual drain, got %.3f", res.Health)
	}
	if res.Reward != -0.08 {
		t.Fatalf("expected reward -0.08, got %.4f", res.Reward)
	}
	if !strings.Contains(res.Message, "starving") || !strings.Contains(res.Message, "exhausted") {
		t.Fatalf("expected both drain messages, got %q", res.Message)
	}
}

func TestHazardEvasionClearsWithoutDamage(t *testing.T) {
	w := makeWorld(nil)
	w.hazardActive = true
	w.sinceHazard = 9

	res := w.Step(nodes.Flee)

	if res.Hazard {
		t.Fatal("evasion should deactivate the hazard")
	}
	if res.Health != 1.0 {
		t.Fatalf("evasion must not damage health, got %.3f", res.Health)
	}
	if w.sinceHazard != 0 {
		t.Fatalf("expected hazard counter reset, got %d", w.sinceHazard)
	}
	if !strings.Contains(res.Message, "hazard evaded") {
		t.Fatalf("expected evasion message, got %q", res.Message)
	}
}

func TestHazardHitDamagesAndStaysActive(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardDamageMin = 0.20
		c.HazardDamageMax = 0.20
	})
	w.hazardActive = true

	res := w.Step(nodes.Observe)

	if !res.Hazard {
		t.Fatal("a hit must leave the hazard active")
	}
	if res.Health != 0.80 {
		t.Fatalf("expected health 0.80 after 0.20 hit, got %.3f", res.Health)
	}
	if res.Reward != -0.20 {
		t.Fatalf("expected reward -0.20, got %.4f", res.Reward)
	}
}

func TestHazardSpawnDealsNoDamageOnSpawnStep(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 3
		c.HazardMaxInterval = 3
	})

	w.Step(nodes.Observe)
	w.Step(nodes.Observe)
	res := w.Step(nodes.Observe) // counter reaches 3: spawn, no strike

	if !res.Hazard {
		t.Fatal("expected hazard to spawn on the third step")
	}
	if res.Health != 1.0 {
		t.Fatalf("spawn step must not damage health, got %.3f", res.Health)
	}
	if !strings.Contains(res.Message, "hazard appeared") {
		t.Fatalf("expected spawn message, got %q", res.Message)
	}
}

func TestForcedHazardKillsWithin20Steps(t *testing.T) {
	// Hazard every 2 steps, fixed 0.15 damage, agent only rests: spawn on
	// step 2, hits from step 3 on, health 1.0 - 7*0.15 < 0 by step 9.
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 2
		c.HazardMaxInterval = 2
		c.HazardDamageMin = 0.15
		c.HazardDamageMax = 0.15
	})

	for i := 0; i < 20 && !w.Dead(); i++ {
		w.Step(nodes.Rest)
	}

	if !w.Dead() {
		t.Fatalf("expected death within 20 forced-hazard steps, health=%.3f", w.Health())
	}
	if w.Steps() > 20 {
		t.Fatalf("death took %d steps", w.Steps())
	}
}

func TestSensorEmissionOrder(t *testing.T) {
	w := makeWorld(nil)
	w.hunger = 0.1
	w.fatigue = 0.1
	w.health = 0.5
	w.cyclePos = 15 // night
	w.bush = true
	w.hazardActive = true

	got := w.ActiveSensors()
	want := []int{nodes.Hungry, nodes.Tired, nodes.Pain, nodes.Night, nodes.BushSeen, nodes.Danger}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sensor order mismatch: got %v want %v", got, want)
	}

	w.cyclePos = 0 // day swaps exactly one sensor
	got = w.ActiveSensors()
	want = []int{nodes.Hungry, nodes.Tired, nodes.Pain, nodes.Day, nodes.BushSeen, nodes.Danger}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sensor order mismatch: got %v want %v", got, want)
	}
}

func TestEatRestoresHunger(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 100
		c.HazardMaxInterval = 100
	})
	w.hunger = 0.5

	// eat costs (0.00, 0.02) then restores hunger +0.40 → 0.90
	res := w.Step(nodes.Eat)

	if res.Hunger != 0.90 {
		t.Fatalf("expected hunger 0.90 after eating, got %.3f", res.Hunger)
	}
	if !strings.Contains(res.Message, "hunger recovered +0.40") {
		t.Fatalf("expected recovery message, got %q", res.Message)
	}
}

func TestSleepRestoresFatigueAndHealth(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 100
		c.HazardMaxInterval = 100
	})
	w.fatigue = 0.2
	w.health = 0.8

	// sleep: fatigue 0.2 + 0.60 = 0.80, health 0.8 + 0.10 = 0.90
	res := w.Step(nodes.Sleep)

	if res.Fatigue != 0.80 {
		t.Fatalf("expected fatigue 0.80 after sleep, got %.3f", res.Fatigue)
	}
	if res.Health != 0.90 {
		t.Fatalf("expected health 0.90 after sleep, got %.3f", res.Health)
	}
	if res.Reward != 0.1 {
		t.Fatalf("reward should equal the rounded health delta, got %.4f", res.Reward)
	}
}

func TestUnknownActionFallsBackToDefaultCost(t *testing.T) {
	w := makeWorld(func(c *Config) {
		c.HazardMinInterval = 100
		c.HazardMaxInterval = 100
	})

	res := w.Step(999)

	if res.Hunger != 0.97 || res.Fatigue != 0.97 {
		t.Fatalf("expected default cost 0.03/0.03, got hunger=%.3f fatigue=%.3f", res.Hunger, res.Fatigue)
	}
}

func TestSeededWorldsEvolveIdentically(t *testing.T) {
	cfg := DefaultConfig()
	a := New(cfg, rand.New(rand.NewSource(42)))
	b := New(cfg, rand.New(rand.NewSource(42)))

	actions := []int{nodes.Explore, nodes.Observe, nodes.Rest, nodes.Flee, nodes.Eat, nodes.Sleep}
	for i := 0; i < 120; i++ {
		ra := a.Step(actions[i%len(actions)])
		rb := b.Step(actions[i%len(actions)])
		if !reflect.DeepEqual(ra, rb) {
			t.Fatalf("step %d diverged: %+v vs %+v", i, ra, rb)
		}
	}
}
