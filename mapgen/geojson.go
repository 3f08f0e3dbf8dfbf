package mapgen

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"grid-replanner/planner"
)

// ParseObstacles reads the outer rings of every Polygon and MultiPolygon
// feature in a GeoJSON FeatureCollection. Coordinates are cell coordinates.
func ParseObstacles(data []byte) ([]orb.Polygon, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	var polygons []orb.Polygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				polygons = append(polygons, orb.Polygon{g[0]})
			}
		case orb.MultiPolygon:
			for _, p := range g {
				if len(p) > 0 {
					polygons = append(polygons, orb.Polygon{p[0]})
				}
			}
		}
	}
	return polygons, nil
}

// LoadObstacleDir loads every *.geojson file in dir. Unreadable or malformed
// files are logged and skipped.
func LoadObstacleDir(dir string, logger *slog.Logger) ([]orb.Polygon, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.geojson"))
	if err != nil {
		return nil, err
	}

	logger.Info("loading obstacles", "dir", dir, "files", len(files))

	var all []orb.Polygon
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn("⚠️  failed to read obstacle file", "file", file, "error", err)
			continue
		}
		polygons, err := ParseObstacles(data)
		if err != nil {
			logger.Warn("⚠️  failed to parse obstacle file", "file", file, "error", err)
			continue
		}
		all = append(all, polygons...)
		logger.Info("   ✅ loaded polygons", "file", filepath.Base(file), "count", len(polygons))
	}

	logger.Info("obstacles loaded", "polygons", len(all))
	return all, nil
}

// SimplifyObstacles reduces ring detail with Douglas-Peucker at epsilon cells
// and drops polygons contained in others. Rings that would collapse below a
// triangle are kept as they were. The input is not modified.
func SimplifyObstacles(polygons []orb.Polygon, epsilon float64) []orb.Polygon {
	out := make([]orb.Polygon, 0, len(polygons))
	if epsilon > 0 {
		dp := simplify.DouglasPeucker(epsilon)
		for _, p := range polygons {
			s := dp.Polygon(p.Clone())
			if len(s) == 0 || len(s[0]) < 4 {
				s = p
			}
			out = append(out, s)
		}
	} else {
		out = append(out, polygons...)
	}
	return RemoveContained(out)
}

// GridFromObstacles rasterizes polygons onto a new width x height grid.
func GridFromObstacles(width, height int, polygons []orb.Polygon) *planner.Grid {
	g := planner.NewGrid(width, height)
	for _, p := range polygons {
		Rasterize(g, p)
	}
	return g
}
