package pointcloud

import "github.com/deepgtav/vpilot-collector/pkg/core"

// Entity types reported by the simulator for the object a ray hit.
const (
	EntityNone    int32 = 0
	EntityPed     int32 = 1
	EntityVehicle int32 = 2
	EntityObject  int32 = 3
)

// RayMiss is the ray result of a ray that reached max range without a hit.
const RayMiss int32 = 0

// Hits returns the samples whose ray hit something, in order.
func Hits(samples []core.PointSample) []core.PointSample {
	out := make([]core.PointSample, 0, len(samples))
	for _, s := range samples {
		if s.RayResult != RayMiss {
			out = append(out, s)
		}
	}
	return out
}

// CountByEntity tallies samples per entity type.
func CountByEntity(samples []core.PointSample) map[int32]int {
	counts := make(map[int32]int)
	for _, s := range samples {
		counts[s.EntityType]++
	}
	return counts
}
