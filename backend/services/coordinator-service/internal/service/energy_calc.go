package service

import "math"

// CalculateDeltaEnergy returns consumed Wh between two meter readings; a rollback yields zero.
func CalculateDeltaEnergy(prev, current int64) int64 {
	if current < prev {
		return 0
	}
	return current - prev
}

// Charge is the billed outcome of a finished session.
type Charge struct {
	EnergyKWh float64
	Cost      int64
}

// ComputeCharge prices the energy between two meter readings at rate minor units per kWh.
func ComputeCharge(startWh, endWh int64, rate float64) Charge {
	kwh := float64(CalculateDeltaEnergy(startWh, endWh)) / 1000
	if kwh <= 0 {
		return Charge{}
	}
	return Charge{EnergyKWh: kwh, Cost: int64(math.Round(kwh * rate))}
}
