package spt

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// QuiverPlot renders displacement arrows at each point's position
type QuiverPlot struct {
	Title   string
	Points  []DisplacementRecord
	Width   int
	Height  int
	Padding int
	Arrow   color.RGBA
	// MaxArrow is the pixel length of the longest displacement
	MaxArrow float64
}

// NewQuiverPlot creates a plot with default geometry
func NewQuiverPlot(title string, points []DisplacementRecord) *QuiverPlot {
	return &QuiverPlot{
		Title:    title,
		Points:   points,
		Width:    800,
		Height:   600,
		Padding:  40,
		Arrow:    color.RGBA{0, 0, 255, 255},
		MaxArrow: 24,
	}
}

// TrackPlot is the quiver plot of one track
func TrackPlot(t Track) *QuiverPlot {
	return NewQuiverPlot(fmt.Sprintf("Track: %d", t.ID), t.Points)
}

// AllTracksPlot combines every track into one quiver plot
func AllTracksPlot(tracks []Track) *QuiverPlot {
	var points []DisplacementRecord
	for _, t := range tracks {
		points = append(points, t.Points...)
	}
	return NewQuiverPlot(fmt.Sprintf("All %d tracks (%d points)", len(tracks), len(points)), points)
}

// bounds returns the data extent, padded when degenerate
func (q *QuiverPlot) bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.MaxFloat64, math.MaxFloat64
	maxX, maxY = -math.MaxFloat64, -math.MaxFloat64
	for _, p := range q.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	if len(q.Points) == 0 {
		return 0, 0, 1, 1
	}
	if maxX-minX == 0 {
		minX, maxX = minX-0.5, maxX+0.5
	}
	if maxY-minY == 0 {
		minY, maxY = minY-0.5, maxY+0.5
	}
	return minX, minY, maxX, maxY
}

// Render draws the plot. The y axis points up.
func (q *QuiverPlot) Render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, q.Width, q.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	black := color.RGBA{0, 0, 0, 255}
	grey := color.RGBA{160, 160, 160, 255}

	left, top := q.Padding, q.Padding
	right, bottom := q.Width-q.Padding, q.Height-q.Padding
	drawLine(img, left, bottom, right, bottom, grey)
	drawLine(img, left, top, left, bottom, grey)

	minX, minY, maxX, maxY := q.bounds()
	plotW := float64(right - left)
	plotH := float64(bottom - top)
	scale := math.Min(plotW/(maxX-minX), plotH/(maxY-minY))

	toImage := func(x, y float64) (int, int) {
		ix := float64(left) + (x-minX)*scale
		iy := float64(bottom) - (y-minY)*scale
		return int(math.Round(ix)), int(math.Round(iy))
	}

	maxRho := 0.0
	for _, p := range q.Points {
		maxRho = math.Max(maxRho, p.Rho)
	}

	for _, p := range q.Points {
		x0, y0 := toImage(p.X, p.Y)
		setPixel(img, x0, y0, black)
		if maxRho == 0 || p.Rho == 0 {
			continue
		}
		length := q.MaxArrow * p.Rho / maxRho
		// image y grows downward
		x1 := x0 + int(math.Round(length*math.Cos(p.Theta)))
		y1 := y0 - int(math.Round(length*math.Sin(p.Theta)))
		drawArrow(img, x0, y0, x1, y1, p.Theta, q.Arrow)
	}

	drawText(img, left, top-16, q.Title, black)
	drawText(img, (left+right)/2, q.Height-12, "x", black)
	drawText(img, 10, (top+bottom)/2, "y", black)
	drawText(img, left, bottom+14, strconv.FormatFloat(minX, 'g', 4, 64), grey)
	drawText(img, right-40, bottom+14, strconv.FormatFloat(maxX, 'g', 4, 64), grey)

	return img
}

// WritePNG encodes the rendered plot as PNG
func (q *QuiverPlot) WritePNG(w io.Writer) error {
	return png.Encode(w, q.Render())
}

// SavePNG renders the plot to a PNG file
func (q *QuiverPlot) SavePNG(path string) error {
	return writeFile(path, q.WritePNG)
}

// ParsePlotRange converts a plot selection into a half-open index range over n
// tracks. Accepted forms are "all", a count "N" (the first N tracks, all of
// them when N is negative) and a 1-based inclusive range "from-to". An empty
// selection plots nothing.
func ParsePlotRange(sel string, n int) (from, to int, err error) {
	sel = strings.TrimSpace(sel)
	if c, err := strconv.Atoi(sel); err == nil && c < 0 {
		return 0, n, nil
	}
	switch {
	case sel == "" || sel == "none":
		return 0, 0, nil
	case strings.EqualFold(sel, "all"):
		return 0, n, nil
	case strings.Contains(sel, "-"):
		parts := strings.SplitN(sel, "-", 2)
		a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
		b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errA != nil || errB != nil || a < 1 || b < a {
			return 0, 0, fmt.Errorf("invalid plot range %q", sel)
		}
		from, to = a-1, b
	default:
		c, err := strconv.Atoi(sel)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid plot count %q", sel)
		}
		from, to = 0, c
	}
	if to > n {
		to = n
	}
	if from > to {
		from = to
	}
	return from, to, nil
}

// WriteTrackPlots saves Track_<id>.png for the selected tracks and a combined
// Tracks_<first>_<last>.png of the same selection, numbered 1-based like the
// selection itself. ctx is checked between tracks; on
// cancellation the plots written so far are kept and the context error is
// returned.
func WriteTrackPlots(ctx context.Context, dir string, tracks []Track, sel string, progress ProgressFunc) ([]string, error) {
	from, to, err := ParsePlotRange(sel, len(tracks))
	if err != nil {
		return nil, err
	}
	selected := tracks[from:to]
	if len(selected) == 0 {
		return nil, nil
	}

	var msgs []string
	for i, t := range selected {
		if err := ctx.Err(); err != nil {
			Logf("[plot] halted after %d of %d plots", i, len(selected))
			return msgs, err
		}
		path := filepath.Join(dir, fmt.Sprintf("Track_%d.png", t.ID))
		if err := TrackPlot(t).SavePNG(path); err != nil {
			return msgs, err
		}
		msgs = append(msgs, "Plot saved to "+path)
		if progress != nil {
			progress(i+1, len(selected))
		}
	}

	path := filepath.Join(dir, CombinedPlotName(from, to))
	if err := AllTracksPlot(selected).SavePNG(path); err != nil {
		return msgs, err
	}
	msgs = append(msgs, "Plot saved to "+path)
	return msgs, nil
}

// CombinedPlotName names the combined plot of the half-open range [from,to)
func CombinedPlotName(from, to int) string {
	return fmt.Sprintf("Tracks_%d_%d.png", from+1, to)
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawLine draws a line using Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		setPixel(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// drawArrow draws a shaft with a two-stroke head at (x1, y1)
func drawArrow(img *image.RGBA, x0, y0, x1, y1 int, theta float64, c color.RGBA) {
	drawLine(img, x0, y0, x1, y1, c)
	const head = 5.0
	for _, spread := range []float64{math.Pi * 5 / 6, -math.Pi * 5 / 6} {
		a := theta + spread
		hx := x1 + int(math.Round(head*math.Cos(a)))
		hy := y1 - int(math.Round(head*math.Sin(a)))
		drawLine(img, x1, y1, hx, hy, c)
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
