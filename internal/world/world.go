// Package world simulates the survival environment: three vitals in [0,1],
// a day/night cycle, randomized hazards, and an action vocabulary whose
// costs and recoveries move the vitals. Health is the only survival
// indicator; hunger or fatigue hitting zero erodes it, and health zero is
// terminal.
package world

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

// #region world
// World owns the agent vitals and the world clock. Step is the sole
// mutator; ActiveSensors is evaluated fresh from current state each call.
type World struct {
	config Config
	rng    *rand.Rand

	health  float64
	hunger  float64
	fatigue float64

	steps    int
	cyclePos int
	dead     bool

	hazardActive bool
	sinceHazard  int
	nextInterval int
	bush         bool
}

// New creates a world with full vitals. A nil rng falls back to a
// time-seeded source; pass a seeded one for reproducible runs. The first
// hazard interval is sampled before the initial bush roll, so two worlds
// built from equal seeds evolve identically.
func New(config Config, rng *rand.Rand) *World {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	w := &World{
		config:  config,
		rng:     rng,
		health:  1.0,
		hunger:  1.0,
		fatigue: 1.0,
	}
	w.nextInterval = w.sampleInterval()
	w.bush = rng.Float64() < config.BushChance
	return w
}

// Step applies one action and returns the outcome snapshot. Mutation order
// is fixed: clock, cost, recovery, starvation/exhaustion drains, hazard
// resolution, hazard spawn, death check. Reward is the health delta across
// the whole step, rounded to four decimals.
func (w *World) Step(action int) StepResult {
	if w.dead {
		return w.snapshot(0, "agent is already dead")
	}

	w.steps++
	w.cyclePos = (w.cyclePos + 1) % w.config.CycleLength
	w.sinceHazard++

	before := w.health
	var trail []string

	// 1. Action cost against hunger and fatigue
	cost, ok := w.config.Costs[action]
	if !ok {
		cost = w.config.DefaultCost
	}
	w.hunger = clamp01(w.hunger - cost.Hunger)
	w.fatigue = clamp01(w.fatigue - cost.Fatigue)

	// 2. Action recovery
	if rec, ok := w.config.Recoveries[action]; ok {
		if rec.Hunger > 0 {
			w.hunger = clamp01(w.hunger + rec.Hunger)
			trail = append(trail, fmt.Sprintf("hunger recovered +%.2f", rec.Hunger))
		}
		if rec.Fatigue > 0 {
			w.fatigue = clamp01(w.fatigue + rec.Fatigue)
			trail = append(trail, fmt.Sprintf("fatigue recovered +%.2f", rec.Fatigue))
		}
		if rec.Health > 0 {
			w.health = clamp01(w.health + rec.Health)
			trail = append(trail, fmt.Sprintf("health recovered +%.2f", rec.Health))
		}
	}

	// 3. Starvation and exhaustion drains, independent of each other
	if w.hunger <= 0 {
		w.health = clamp01(w.health - w.config.HungerDrain)
		trail = append(trail, fmt.Sprintf("starving, health -%.2f", w.config.HungerDrain))
	}
	if w.fatigue <= 0 {
		w.health = clamp01(w.health - w.config.FatigueDrain)
		trail = append(trail, fmt.Sprintf("exhausted, health -%.2f", w.config.FatigueDrain))
	}

	// 4. Resolve an active hazard before the spawn check, so a hazard
	// never strikes on its own spawn step. A hit leaves the hazard
	// active; only evasion clears it.
	if w.hazardActive {
		if w.config.Evasion[action] {
			w.hazardActive = false
			w.nextInterval = w.sampleInterval()
			w.sinceHazard = 0
			w.bush = w.rng.Float64() < w.config.BushChance
			trail = append(trail, "hazard evaded")
		} else {
			span := w.config.HazardDamageMax - w.config.HazardDamageMin
			damage := roundN(w.config.HazardDamageMin+w.rng.Float64()*span, 2)
			w.health = clamp01(w.health - damage)
			trail = append(trail, fmt.Sprintf("hazard hit, health -%.2f", damage))
		}
	}

	// 5. Spawn a fresh hazard once the interval has elapsed
	if !w.hazardActive && w.sinceHazard >= w.nextInterval {
		w.hazardActive = true
		trail = append(trail, "hazard appeared")
	}

	// 6. Death is terminal
	if w.health <= 0 {
		w.health = 0
		w.dead = true
		trail = append(trail, "agent died")
	}

	reward := roundN(w.health-before, 4)

	message := "-"
	if len(trail) > 0 {
		message = strings.Join(trail, " | ")
	}
	return w.snapshot(reward, message)
}

// #endregion world

// #region accessors
// Dead reports whether health has reached zero. Terminal: a dead world
// ignores further actions.
func (w *World) Dead() bool { return w.dead }

// Steps returns the number of actions applied so far.
func (w *World) Steps() int { return w.steps }

// Health returns the current health in [0,1].
func (w *World) Health() float64 { return w.health }

// Hunger returns the current hunger in [0,1].
func (w *World) Hunger() float64 { return w.hunger }

// Fatigue returns the current fatigue in [0,1].
func (w *World) Fatigue() float64 { return w.fatigue }

// Night reports whether the cycle position is in the night band.
func (w *World) Night() bool { return w.cyclePos >= w.config.NightStart }

// HazardActive reports whether a hazard is currently live.
func (w *World) HazardActive() bool { return w.hazardActive }

// BushNearby reports whether a bush is present.
func (w *World) BushNearby() bool { return w.bush }

// Status renders a one-line human-readable summary for logs and inspect.
func (w *World) Status() string {
	phase := "day"
	if w.Night() {
		phase = "night"
	}
	hazard := "safe"
	if w.hazardActive {
		hazard = "HAZARD ACTIVE"
	}
	names := make([]string, 0, 6)
	for _, s := range w.ActiveSensors() {
		names = append(names, nodes.Translate(s))
	}
	return fmt.Sprintf("[step %d] %s | health=%.2f hunger=%.2f fatigue=%.2f | %s | sensors=%v",
		w.steps, phase, w.health, w.hunger, w.fatigue, hazard, names)
}

// #endregion accessors

// #region helpers
func (w *World) sampleInterval() int {
	span := w.config.HazardMaxInterval - w.config.HazardMinInterval
	return w.config.HazardMinInterval + w.rng.Intn(span+1)
}

func (w *World) snapshot(reward float64, message string) StepResult {
	return StepResult{
		Reward:  reward,
		Dead:    w.dead,
		Health:  roundN(w.health, 3),
		Hunger:  roundN(w.hunger, 3),
		Fatigue: roundN(w.fatigue, 3),
		Night:   w.Night(),
		Hazard:  w.hazardActive,
		Sensors: w.ActiveSensors(),
		Message: message,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// roundN rounds to n decimal places, the snapshot precision of results.
func roundN(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}

// #endregion helpers
