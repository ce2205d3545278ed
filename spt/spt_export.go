package spt

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrajectoryExport is the trajectory document handed to downstream SPT
// analysis tools. FinalTraj holds one [x, y, frame] row per point.
type TrajectoryExport struct {
	TrackIDs     []int          `json:"trackIds"`
	FinalTraj    [][][3]float64 `json:"finalTraj"`
	TrajLengths  []int          `json:"trajLengths"`
	NumTraj      int            `json:"numTraj"`
	AvTrajLength float64        `json:"avTrajLength"`
	ShortestTraj int            `json:"shortestTraj"`
	LongestTraj  int            `json:"longestTraj"`
	Timestep     float64        `json:"timestep"`
}

// NewTrajectoryExport builds the export from frame-sorted tracks
func NewTrajectoryExport(tracks []Track, frameRate float64) (*TrajectoryExport, error) {
	if len(tracks) == 0 {
		return nil, ErrEmptyResult
	}
	if frameRate <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %g", frameRate)
	}

	exp := &TrajectoryExport{
		NumTraj:      len(tracks),
		ShortestTraj: math.MaxInt,
		Timestep:     1 / frameRate,
	}
	lengths := make([]float64, 0, len(tracks))
	for _, t := range tracks {
		rows := make([][3]float64, len(t.Points))
		for i, p := range t.Points {
			rows[i] = [3]float64{p.X, p.Y, p.Frame}
		}
		exp.TrackIDs = append(exp.TrackIDs, t.ID)
		exp.FinalTraj = append(exp.FinalTraj, rows)
		exp.TrajLengths = append(exp.TrajLengths, len(rows))
		lengths = append(lengths, float64(len(rows)))
		if len(rows) < exp.ShortestTraj {
			exp.ShortestTraj = len(rows)
		}
		if len(rows) > exp.LongestTraj {
			exp.LongestTraj = len(rows)
		}
	}
	exp.AvTrajLength = stat.Mean(lengths, nil)
	return exp, nil
}

// WriteTrajectories encodes the export as indented JSON
func WriteTrajectories(w io.Writer, tracks []Track, frameRate float64) error {
	exp, err := NewTrajectoryExport(tracks, frameRate)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}

// WriteTrajectoriesFile writes the trajectory export to path
func WriteTrajectoriesFile(path string, tracks []Track, frameRate float64) (string, error) {
	if len(tracks) == 0 {
		return "", fmt.Errorf("trajectory export: %w", ErrEmptyResult)
	}
	if err := writeFile(path, func(w io.Writer) error {
		return WriteTrajectories(w, tracks, frameRate)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d trajectories to %s", len(tracks), path), nil
}
