// Package render draws occupancy maps and planned paths to PNG images.
package render

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"grid-replanner/planner"
)

// Layer colors used by the run loop.
var (
	SearchColor = color.RGBA{R: 220, A: 255}                 // grid search path
	RepairColor = color.RGBA{R: 255, G: 155, A: 255}         // replanned path
	StaleColor  = color.RGBA{R: 150, G: 150, B: 150, A: 255} // path before obstacles appeared
	StartColor  = color.RGBA{G: 200, A: 255}
	GoalColor   = color.RGBA{B: 220, A: 255}
)

var (
	freeColor    = color.White
	blockedColor = color.Black
)

const (
	// CellSize is the rendered size of one grid cell.
	CellSize = vg.Length(2)
	minSide  = 4 * vg.Inch
)

// Layer is one path drawn over the map.
type Layer struct {
	Name  string
	Path  planner.Path
	Color color.Color
}

// Scene is a map with path overlays and optional start/goal markers.
type Scene struct {
	Title  string
	Map    planner.OccupancyMap
	Layers []Layer
	Start  *planner.Point
	Goal   *planner.Point
}

// Plot builds the gonum plot for the scene.
func (s *Scene) Plot() (*plot.Plot, error) {
	if s.Map == nil {
		return nil, fmt.Errorf("render: scene has no map")
	}
	w, h := s.Map.Dimensions()

	p := plot.New()
	p.Title.Text = s.Title
	p.X.Min, p.X.Max = 0, float64(w)
	p.Y.Min, p.Y.Max = 0, float64(h)
	// Row 0 at the top, as in the grid.
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	hm := plotter.NewHeatMap(occupancy{s.Map}, twoTone{freeColor, blockedColor})
	hm.Min, hm.Max = 0, 1
	hm.Rasterized = true
	p.Add(hm)

	for _, layer := range s.Layers {
		if layer.Path.Empty() {
			continue
		}
		line, err := plotter.NewLine(pathXYs(layer.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to draw %s: %w", layer.Name, err)
		}
		line.Color = layer.Color
		line.Width = vg.Points(1.5)
		p.Add(line)
		if layer.Name != "" {
			p.Legend.Add(layer.Name, line)
		}
	}

	for _, m := range []struct {
		name  string
		pt    *planner.Point
		color color.Color
	}{
		{"start", s.Start, StartColor},
		{"goal", s.Goal, GoalColor},
	} {
		if m.pt == nil {
			continue
		}
		sc, err := plotter.NewScatter(pathXYs(planner.Path{*m.pt}))
		if err != nil {
			return nil, fmt.Errorf("failed to draw %s: %w", m.name, err)
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Color = m.color
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add(m.name, sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// Size returns the image size for the scene's map.
func (s *Scene) Size() (vg.Length, vg.Length) {
	w, h := s.Map.Dimensions()
	return max(CellSize*vg.Length(w), minSide), max(CellSize*vg.Length(h), minSide)
}

// Save writes the scene to filename; the format follows the extension.
func (s *Scene) Save(filename string) error {
	p, err := s.Plot()
	if err != nil {
		return err
	}
	w, h := s.Size()
	if err := p.Save(w, h, filename); err != nil {
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}
	return nil
}

// WriteTo encodes the scene as PNG.
func (s *Scene) WriteTo(out io.Writer) (int64, error) {
	p, err := s.Plot()
	if err != nil {
		return 0, err
	}
	w, h := s.Size()
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return 0, fmt.Errorf("failed to encode png: %w", err)
	}
	return wt.WriteTo(out)
}

func pathXYs(path planner.Path) plotter.XYs {
	xys := make(plotter.XYs, len(path))
	for i, pt := range path {
		xys[i] = plotter.XY{X: float64(pt.X) + 0.5, Y: float64(pt.Y) + 0.5}
	}
	return xys
}

// occupancy adapts an OccupancyMap to plotter.GridXYZ: 1 for blocked cells.
type occupancy struct {
	m planner.OccupancyMap
}

func (o occupancy) Dims() (int, int) { return o.m.Dimensions() }

func (o occupancy) Z(c, r int) float64 {
	if o.m.IsFree(planner.Point{X: c, Y: r}) {
		return 0
	}
	return 1
}

func (o occupancy) X(c int) float64 { return float64(c) + 0.5 }
func (o occupancy) Y(r int) float64 { return float64(r) + 0.5 }

// twoTone is a palette.Palette of fixed colors.
type twoTone []color.Color

func (t twoTone) Colors() []color.Color { return t }
