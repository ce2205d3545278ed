package spt

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegion(t *testing.T) Region {
	t.Helper()
	region, err := ExtractRegion([]DisplacementRecord{
		{TrackID: 1, X: 1, Y: 1, Rho: 0.2},
		{TrackID: 1, X: 2, Y: 3, Rho: 1.4},
		{TrackID: 2, X: 3, Y: 2, Rho: 0.8},
	}, []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}})
	require.NoError(t, err)
	region.Name = "cell"
	return region
}

func TestHeatMapRenderer_Title(t *testing.T) {
	r := NewHeatMapRenderer(testRegion(t))
	assert.Equal(t, "Speed heatmap: cell (3 points)", r.Title())
}

func TestHeatMapRenderer_RenderToSVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewHeatMapRenderer(testRegion(t)).RenderToSVG(&buf))

	svg := buf.String()
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "</svg>")
	assert.Contains(t, svg, "<path")
}

func TestHeatMapRenderer_RenderToPNG(t *testing.T) {
	r := NewHeatMapRenderer(testRegion(t))

	var buf bytes.Buffer
	require.NoError(t, r.RenderToPNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)

	// 200mm drawing plus padding at 300 DPI
	b := img.Bounds()
	assert.InDelta(t, 2598, b.Dx(), 2)
	assert.InDelta(t, 2598, b.Dy(), 2)
}

func TestHeatMapRenderer_Save(t *testing.T) {
	dir := t.TempDir()
	r := NewHeatMapRenderer(testRegion(t))

	msg, err := r.Save(filepath.Join(dir, "cell.svg"))
	require.NoError(t, err)
	assert.Equal(t, "Speed heatmap: cell (3 points) saved to "+filepath.Join(dir, "cell.svg"), msg)
	data, err := os.ReadFile(filepath.Join(dir, "cell.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")

	_, err = r.Save(filepath.Join(dir, "cell.png"))
	require.NoError(t, err)
	f, err := os.Open(filepath.Join(dir, "cell.png"))
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestHeatColor(t *testing.T) {
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, heatColor(0, 0, 1))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, heatColor(1, 0, 1))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, heatColor(5, 5, 5), "flat range maps to the cold end")
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, heatColor(9, 0, 1), "values are clamped")

	mid := heatColor(0.5, 0, 1)
	assert.Equal(t, uint8(153), mid.G)
}
