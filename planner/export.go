package planner

import (
	"maps"
	"slices"

	"github.com/paulmach/orb/geojson"
)

// Feature converts the path to a GeoJSON LineString feature in cell coordinates.
// A single-point path becomes a Point feature.
func (p Path) Feature(name string) *geojson.Feature {
	var f *geojson.Feature
	if len(p) == 1 {
		f = geojson.NewFeature(p[0].Orb())
	} else {
		f = geojson.NewFeature(p.LineString())
	}
	f.Properties["name"] = name
	f.Properties["points"] = len(p)
	f.Properties["length"] = p.Length()
	return f
}

// FeatureCollection bundles named paths plus start and goal markers. Empty paths are skipped.
func FeatureCollection(start, goal Point, paths map[string]Path) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	startFeature := geojson.NewFeature(start.Orb())
	startFeature.Properties["name"] = "start"
	fc.Append(startFeature)

	goalFeature := geojson.NewFeature(goal.Orb())
	goalFeature.Properties["name"] = "goal"
	fc.Append(goalFeature)

	for _, name := range slices.Sorted(maps.Keys(paths)) {
		if path := paths[name]; !path.Empty() {
			fc.Append(path.Feature(name))
		}
	}
	return fc
}
