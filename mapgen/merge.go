package mapgen

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RemoveContained drops every polygon whose outer ring lies entirely inside
// another polygon. Of two identical polygons the later one survives.
func RemoveContained(polygons []orb.Polygon) []orb.Polygon {
	if len(polygons) <= 1 {
		return polygons
	}

	contained := make([]bool, len(polygons))
	for i := range polygons {
		if contained[i] {
			continue
		}
		for j := range polygons {
			if i == j || contained[j] {
				continue
			}
			if isContainedIn(polygons[i], polygons[j]) {
				contained[i] = true
				break
			}
			if isContainedIn(polygons[j], polygons[i]) {
				contained[j] = true
			}
		}
	}

	result := make([]orb.Polygon, 0, len(polygons))
	for i, p := range polygons {
		if !contained[i] {
			result = append(result, p)
		}
	}
	return result
}

// isContainedIn reports whether every vertex of a's outer ring is inside b.
func isContainedIn(a, b orb.Polygon) bool {
	if len(a) == 0 || len(b) == 0 || len(a[0]) == 0 || len(b[0]) == 0 {
		return false
	}

	ab, bb := a.Bound(), b.Bound()
	if !bb.Contains(ab.Min) || !bb.Contains(ab.Max) {
		return false
	}

	for _, v := range a[0] {
		if !planar.RingContains(b[0], v) {
			return false
		}
	}
	return true
}
