package planner

// DefaultCollisionResolution is the sample count used when a caller passes no resolution.
const DefaultCollisionResolution = 100

// SamplesPerStep is the segment sampling density used by the tree planner.
const SamplesPerStep = 10

// SegmentResolution returns the number of samples checked along a tree edge of the given step.
func SegmentResolution(step int) int {
	return max(step*SamplesPerStep, 2)
}

// IsCollisionFree checks if a straight line path between two points is collision-free.
//
// The segment is sampled at resolution evenly spaced points, endpoints included, and each
// sample is truncated to its cell index. Thin diagonal obstacles can be skipped when the
// resolution is too low for the segment length.
func IsCollisionFree(m OccupancyMap, p1, p2 Point, resolution int) bool {
	if resolution <= 0 {
		resolution = DefaultCollisionResolution
	}
	if resolution == 1 || p1 == p2 {
		return m.IsFree(p1)
	}

	dx := float64(p2.X - p1.X)
	dy := float64(p2.Y - p1.Y)
	last := resolution - 1

	for i := 0; i < resolution; i++ {
		sample := p2
		if i < last {
			t := float64(i) / float64(last)
			sample = Point{
				X: int(float64(p1.X) + t*dx),
				Y: int(float64(p1.Y) + t*dy),
			}
		}
		if !m.IsFree(sample) {
			return false
		}
	}
	return true
}
