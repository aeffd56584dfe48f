package world

import "github.com/danielpatrickdp/survival-agent/internal/nodes"

// #region effects
// Cost is the per-step hunger/fatigue price of executing an action.
type Cost struct {
	Hunger  float64
	Fatigue float64
}

// Recovery is the restorative effect of an action. Zero fields mean the
// action does not touch that vital.
type Recovery struct {
	Hunger  float64
	Fatigue float64
	Health  float64
}

// #endregion effects

// #region config
// Config holds every tunable of the survival world: sensor thresholds,
// drain rates, action effect tables, hazard timing/damage ranges, and the
// day/night cycle geometry. Tables are configuration, not derived state.
type Config struct {
	CycleLength int // steps per full day/night cycle
	NightStart  int // cycle position where night begins

	HungerThreshold  float64 // hungry sensor fires below this
	FatigueThreshold float64 // tired sensor fires below this
	HealthThreshold  float64 // pain sensor fires below this

	HungerDrain  float64 // health lost per step while hunger is zero
	FatigueDrain float64 // health lost per step while fatigue is zero

	HazardMinInterval int
	HazardMaxInterval int
	HazardDamageMin   float64
	HazardDamageMax   float64
	BushChance        float64 // probability a bush is present after a re-roll

	DefaultCost Cost             // applied when an action has no table entry
	Costs       map[int]Cost     // action node -> cost
	Recoveries  map[int]Recovery // action node -> recovery
	Evasion     map[int]bool     // actions that resolve a hazard without damage
}

// DefaultConfig returns the standard survival tuning: a 20-step day with
// night from position 12, hazard windows of 5-15 steps, and the stock
// action effect tables.
func DefaultConfig() Config {
	return Config{
		CycleLength:       20,
		NightStart:        12,
		HungerThreshold:   0.4,
		FatigueThreshold:  0.3,
		HealthThreshold:   0.7,
		HungerDrain:       0.05,
		FatigueDrain:      0.03,
		HazardMinInterval: 5,
		HazardMaxInterval: 15,
		HazardDamageMin:   0.10,
		HazardDamageMax:   0.25,
		BushChance:        0.5,
		DefaultCost:       Cost{Hunger: 0.03, Fatigue: 0.03},
		Costs: map[int]Cost{
			nodes.Flee:    {Hunger: 0.12, Fatigue: 0.15}, // most expensive
			nodes.Hide:    {Hunger: 0.05, Fatigue: 0.04},
			nodes.Observe: {Hunger: 0.02, Fatigue: 0.01}, // cheapest
			nodes.Explore: {Hunger: 0.08, Fatigue: 0.10},
			nodes.Eat:     {Hunger: 0.00, Fatigue: 0.02},
			nodes.Rest:    {Hunger: 0.01, Fatigue: 0.00},
			nodes.Sleep:   {Hunger: 0.02, Fatigue: 0.00},
		},
		Recoveries: map[int]Recovery{
			nodes.Eat:   {Hunger: 0.40},
			nodes.Rest:  {Fatigue: 0.25},
			nodes.Sleep: {Fatigue: 0.60, Health: 0.10},
		},
		Evasion: map[int]bool{
			nodes.Flee: true,
			nodes.Hide: true,
		},
	}
}

// #endregion config

// #region result
// StepResult is the snapshot returned by World.Step. Vitals are rounded to
// three decimals; Reward is the health delta rounded to four.
type StepResult struct {
	Reward  float64 `json:"reward"`
	Dead    bool    `json:"dead"`
	Health  float64 `json:"health"`
	Hunger  float64 `json:"hunger"`
	Fatigue float64 `json:"fatigue"`
	Night   bool    `json:"night"`
	Hazard  bool    `json:"hazard"`
	Sensors []int   `json:"sensors"`
	Message string  `json:"message"`
}

// #endregion result
