package spt

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientLags is returned when fewer than two averaged lags are available to fit
var ErrInsufficientLags = errors.New("need at least two lags to fit")

// MSDTable maps track id to lag to mean squared displacement
type MSDTable map[int]map[int]float64

// ProgressFunc receives the number of finished units and the total
type ProgressFunc func(done, total int)

// MSDPoint is one lag of the track-averaged MSD curve
type MSDPoint struct {
	Lag    int     `json:"lag"`
	MSD    float64 `json:"msd"`
	Tracks int     `json:"tracks"`
}

// DiffusionFit is an ordinary least squares line through MSD against elapsed time
type DiffusionFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
	FrameRate float64 `json:"frameRate"`
	Points    int     `json:"points"`
}

// ComputeMSD returns the time-averaged MSD of a frame-sorted track for lags
// 1..L-2. Each lag i averages the squared displacement over the L-i pairs
// (j, j+i).
func ComputeMSD(t Track) map[int]float64 {
	n := len(t.Points)
	out := make(map[int]float64)
	for lag := 1; lag <= n-2; lag++ {
		var sum float64
		pairs := n - lag
		for j := 0; j < pairs; j++ {
			dx := t.Points[j+lag].X - t.Points[j].X
			dy := t.Points[j+lag].Y - t.Points[j].Y
			sum += dx*dx + dy*dy
		}
		out[lag] = sum / float64(pairs)
	}
	return out
}

// BuildMSDTable computes the MSD of every track in ascending id order. The
// context is checked between tracks; on cancellation the partial table is
// returned together with the context error.
func BuildMSDTable(ctx context.Context, tracks []Track, progress ProgressFunc) (MSDTable, error) {
	ordered := make([]Track, len(tracks))
	copy(ordered, tracks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	table := make(MSDTable, len(ordered))
	for i, t := range ordered {
		if err := ctx.Err(); err != nil {
			Logf("[msd] halted after %d of %d tracks", i, len(ordered))
			return table, err
		}
		table[t.ID] = ComputeMSD(t)
		if progress != nil {
			progress(i+1, len(ordered))
		}
	}
	return table, nil
}

// Without returns a new table lacking the given tracks. The receiver is left
// untouched so results already handed out stay valid.
func (m MSDTable) Without(ids ...int) MSDTable {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make(MSDTable, len(m))
	for id, lags := range m {
		if !drop[id] {
			out[id] = lags
		}
	}
	return out
}

// Clone returns a deep copy of the table
func (m MSDTable) Clone() MSDTable {
	if m == nil {
		return nil
	}
	out := make(MSDTable, len(m))
	for id, lags := range m {
		cp := make(map[int]float64, len(lags))
		for lag, v := range lags {
			cp[lag] = v
		}
		out[id] = cp
	}
	return out
}

// TrackIDs returns the track ids in ascending order
func (m MSDTable) TrackIDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MaxLag returns the largest lag present in any track
func (m MSDTable) MaxLag() int {
	max := 0
	for _, lags := range m {
		for lag := range lags {
			if lag > max {
				max = lag
			}
		}
	}
	return max
}

// AverageMSD averages each lag across the tracks that have it. Lags above
// maxLag are ignored; maxLag <= 0 keeps every lag.
func AverageMSD(table MSDTable, maxLag int) []MSDPoint {
	limit := table.MaxLag()
	if maxLag > 0 && maxLag < limit {
		limit = maxLag
	}

	var out []MSDPoint
	ids := table.TrackIDs()
	for lag := 1; lag <= limit; lag++ {
		var values []float64
		for _, id := range ids {
			if v, ok := table[id][lag]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		out = append(out, MSDPoint{Lag: lag, MSD: stat.Mean(values, nil), Tracks: len(values)})
	}
	return out
}

// FitDiffusion converts lags to elapsed time at the given frame rate and fits
// MSD = slope*t + intercept. The fit is descriptive only.
func FitDiffusion(avg []MSDPoint, frameRate float64) (DiffusionFit, error) {
	if frameRate <= 0 {
		return DiffusionFit{}, fmt.Errorf("frame rate must be positive, got %g", frameRate)
	}
	if len(avg) < 2 {
		return DiffusionFit{}, ErrInsufficientLags
	}

	xs := make([]float64, len(avg))
	ys := make([]float64, len(avg))
	for i, p := range avg {
		xs[i] = float64(p.Lag) / frameRate
		ys[i] = p.MSD
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return DiffusionFit{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  stat.RSquared(xs, ys, nil, intercept, slope),
		FrameRate: frameRate,
		Points:    len(avg),
	}, nil
}
