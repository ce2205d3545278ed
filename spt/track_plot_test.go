package spt

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlotRange(t *testing.T) {
	tests := []struct {
		sel      string
		n        int
		from, to int
		wantErr  bool
	}{
		{"", 5, 0, 0, false},
		{"none", 5, 0, 0, false},
		{"all", 5, 0, 5, false},
		{"ALL", 0, 0, 0, false},
		{"3", 5, 0, 3, false},
		{"9", 5, 0, 5, false},
		{"2-4", 5, 1, 4, false},
		{" 2 - 2 ", 5, 1, 2, false},
		{"4-9", 3, 3, 3, false},
		{"0-2", 5, 0, 0, true},
		{"3-1", 5, 0, 0, true},
		{"x", 5, 0, 0, true},
		{"-1", 5, 0, 5, false},
		{"-7", 0, 0, 0, false},
		{"-", 5, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			from, to, err := ParsePlotRange(tt.sel, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestQuiverPlot_Render(t *testing.T) {
	q := TrackPlot(pointsTrack(3, 0, 0, 2, 1, 4, 4))
	assert.Equal(t, "Track: 3", q.Title)

	q.Points[1].Rho, q.Points[1].Theta = 1, 0
	img := q.Render()
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 600, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(q.Width-1, 0))

	var arrow int
	for y := 0; y < q.Height; y++ {
		for x := 0; x < q.Width; x++ {
			if img.RGBAAt(x, y) == q.Arrow {
				arrow++
			}
		}
	}
	assert.Greater(t, arrow, int(q.MaxArrow)/2, "arrow shaft is drawn")
}

func TestQuiverPlot_Degenerate(t *testing.T) {
	// a single point and an empty plot must still render
	for _, q := range []*QuiverPlot{
		NewQuiverPlot("one", []DisplacementRecord{{X: 1, Y: 1}}),
		NewQuiverPlot("none", nil),
	} {
		var buf bytes.Buffer
		require.NoError(t, q.WritePNG(&buf))
		_, err := png.Decode(&buf)
		assert.NoError(t, err)
	}
}

func TestWriteTrackPlots(t *testing.T) {
	tracks := []Track{
		pointsTrack(1, 0, 0, 1, 1),
		pointsTrack(2, 5, 5, 6, 5),
		pointsTrack(7, 2, 2, 2, 3),
	}

	dir := t.TempDir()
	var progress []int
	msgs, err := WriteTrackPlots(context.Background(), dir, tracks, "2-3", func(done, total int) {
		progress = append(progress, done)
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, []int{1, 2}, progress)

	assert.NoFileExists(t, filepath.Join(dir, "Track_1.png"))
	assert.FileExists(t, filepath.Join(dir, "Track_2.png"))
	assert.FileExists(t, filepath.Join(dir, "Track_7.png"))
	assert.FileExists(t, filepath.Join(dir, "Tracks_2_3.png"))
	assert.Contains(t, msgs[2], "Tracks_2_3.png")

	f, err := os.Open(filepath.Join(dir, "Track_7.png"))
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestWriteTrackPlots_NegativeCountPlotsAll(t *testing.T) {
	dir := t.TempDir()
	tracks := []Track{pointsTrack(4, 0, 0, 1, 1), pointsTrack(8, 2, 2, 3, 2)}
	msgs, err := WriteTrackPlots(context.Background(), dir, tracks, "-1", nil)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	for _, name := range []string{"Track_4.png", "Track_8.png", "Tracks_1_2.png"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestWriteTrackPlots_NothingSelected(t *testing.T) {
	dir := t.TempDir()
	msgs, err := WriteTrackPlots(context.Background(), dir, []Track{pointsTrack(1, 0, 0)}, "", nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = WriteTrackPlots(context.Background(), dir, nil, "bogus", nil)
	assert.Error(t, err)
}

func TestWriteTrackPlots_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs, err := WriteTrackPlots(ctx, t.TempDir(), []Track{pointsTrack(1, 0, 0, 1, 1)}, "all", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, msgs)
}
