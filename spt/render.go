package spt

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// HeatMapRenderer draws a region's points coloured by displacement magnitude
type HeatMapRenderer struct {
	Region     Region
	Size       float64 // Longest side of the drawing in millimeters
	Padding    float64 // Padding in millimeters
	Radius     float64 // Point radius in millimeters
	Resolution canvas.Resolution
}

// NewHeatMapRenderer creates a renderer with default settings
func NewHeatMapRenderer(region Region) *HeatMapRenderer {
	return &HeatMapRenderer{
		Region:     region,
		Size:       200.0,
		Padding:    10.0,
		Radius:     1.2,
		Resolution: canvas.DPI(300),
	}
}

// Title is the caption reported alongside the rendered heat map
func (r *HeatMapRenderer) Title() string {
	return fmt.Sprintf("Speed heatmap: %s (%d points)", r.Region.Name, r.Region.Count)
}

// layout returns the data bounds, the scale from data units to millimeters
// and the drawing size
func (r *HeatMapRenderer) layout() (minX, minY, scale, width, height float64) {
	var bound orb.Bound
	switch {
	case len(r.Region.Polygon) > 0:
		bound = r.Region.Polygon.Bound()
	case len(r.Region.Points) > 0:
		first := r.Region.Points[0]
		bound = orb.Point{first.X, first.Y}.Bound()
	}
	for _, p := range r.Region.Points {
		bound = bound.Extend(orb.Point{p.X, p.Y})
	}
	minX, minY = bound.Min[0], bound.Min[1]
	spanX := bound.Max[0] - bound.Min[0]
	spanY := bound.Max[1] - bound.Min[1]
	span := math.Max(spanX, spanY)
	if span == 0 {
		span = 1
	}
	scale = r.Size / span
	width = spanX*scale + 2*r.Padding
	height = spanY*scale + 2*r.Padding
	return minX, minY, scale, width, height
}

// RenderToSVG writes the heat map as an SVG to the provided writer
func (r *HeatMapRenderer) RenderToSVG(w io.Writer) error {
	minX, minY, scale, width, height := r.layout()
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, scale, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the heat map as a PNG to the provided writer
func (r *HeatMapRenderer) RenderToPNG(w io.Writer) error {
	minX, minY, scale, width, height := r.layout()
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, scale, width, height)
	return png.Encode(w, rast)
}

// Save writes the heat map to path, choosing SVG or PNG by extension
func (r *HeatMapRenderer) Save(path string) (string, error) {
	render := r.RenderToPNG
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		render = r.RenderToSVG
	}
	if err := writeFile(path, render); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s saved to %s", r.Title(), path), nil
}

func (r *HeatMapRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, scale, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(x, y float64) (float64, float64) {
		return (x-minX)*scale + r.Padding, (y-minY)*scale + r.Padding
	}

	if len(r.Region.Polygon) > 0 {
		outline := &canvas.Path{}
		for i, pt := range r.Region.Polygon {
			cx, cy := toCanvas(pt[0], pt[1])
			if i == 0 {
				outline.MoveTo(cx, cy)
			} else {
				outline.LineTo(cx, cy)
			}
		}
		outline.Close()

		outlineStyle := canvas.DefaultStyle
		outlineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		outlineStyle.Stroke = canvas.Paint{Color: color.RGBA{80, 80, 80, 255}}
		outlineStyle.StrokeWidth = 0.4
		renderer.RenderPath(outline, outlineStyle, canvas.Identity)
	}

	minRho, maxRho := math.MaxFloat64, -math.MaxFloat64
	for _, v := range r.Region.Rho {
		minRho = math.Min(minRho, v)
		maxRho = math.Max(maxRho, v)
	}

	for i, p := range r.Region.Points {
		rho := p.Rho
		if i < len(r.Region.Rho) {
			rho = r.Region.Rho[i]
		}
		pointStyle := canvas.DefaultStyle
		pointStyle.Fill = canvas.Paint{Color: heatColor(rho, minRho, maxRho)}
		pointStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

		cx, cy := toCanvas(p.X, p.Y)
		renderer.RenderPath(canvas.Circle(r.Radius).Translate(cx, cy), pointStyle, canvas.Identity)
	}
}

// heatColor maps v within [lo, hi] onto a blue to red ramp
func heatColor(v, lo, hi float64) color.RGBA {
	t := 0.0
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	t = math.Max(0, math.Min(1, t))
	return color.RGBA{
		R: uint8(math.Round(255 * t)),
		G: uint8(math.Round(255 * (1 - math.Abs(2*t-1)) * 0.6)),
		B: uint8(math.Round(255 * (1 - t))),
		A: 255,
	}
}
