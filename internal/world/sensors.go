package world

import "github.com/danielpatrickdp/survival-agent/internal/nodes"

// #region sensors
// ActiveSensors derives the firing sensor set from current state, in a
// fixed emission order: hungry, tired, pain, night/day, bush, danger.
// Exactly one of night/day always fires; everything else is conditional.
func (w *World) ActiveSensors() []int {
	sensors := make([]int, 0, 6)
	if w.hunger < w.config.HungerThreshold {
		sensors = append(sensors, nodes.Hungry)
	}
	if w.fatigue < w.config.FatigueThreshold {
		sensors = append(sensors, nodes.Tired)
	}
	if w.health < w.config.HealthThreshold {
		sensors = append(sensors, nodes.Pain)
	}
	if w.Night() {
		sensors = append(sensors, nodes.Night)
	} else {
		sensors = append(sensors, nodes.Day)
	}
	if w.bush {
		sensors = append(sensors, nodes.BushSeen)
	}
	if w.hazardActive {
		sensors = append(sensors, nodes.Danger)
	}
	return sensors
}

// #endregion sensors
