// Package fill converts a distance reading into a fill percentage.
package fill

import "binwatch/internal/types"

// Percent estimates how full the bin is from the distance between the sensor
// (mounted under the lid) and the top of the waste.
//
// A distance at or beyond the bin height reads as empty. Otherwise the fill is
// 100 - distance*100/height with integer division, clamped to [0, 100]; the
// clamp also absorbs negative distances from a noisy sensor.
func Percent(distanceCM, binHeightCM int) int {
	if binHeightCM <= 0 || distanceCM >= binHeightCM {
		return 0
	}
	p := 100 - (distanceCM*100)/binHeightCM
	return min(max(p, 0), 100)
}

// Estimator binds Percent to a fixed bin height.
type Estimator struct {
	HeightCM int
}

// Estimate derives the FillState for a valid reading.
func (e Estimator) Estimate(r types.Reading) types.FillState {
	return types.FillState{
		Percent:    Percent(r.DistanceCM, e.HeightCM),
		DistanceCM: r.DistanceCM,
	}
}
