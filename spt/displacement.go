package spt

import "math"

// Polar returns the magnitude and direction of a displacement. A zero
// displacement yields (0, 0).
func Polar(dx, dy float64) (rho, theta float64) {
	rho = math.Sqrt(dx*dx + dy*dy)
	theta = math.Atan2(dy, dx)
	return rho, theta
}

// BuildDisplacements walks the records in file order and splits them into raw
// tracks. A track boundary is any change of track id from the previous row, so
// a track id that reappears later starts a new RawTrack with a fresh origin.
//
// Rows are assumed frame-ordered within a track; displacements are taken
// against the immediately preceding row.
func BuildDisplacements(records []PositionRecord) []RawTrack {
	var tracks []RawTrack
	var prev *PositionRecord

	for i := range records {
		cur := &records[i]
		if prev == nil || cur.TrackID != prev.TrackID {
			tracks = append(tracks, RawTrack{
				ID:     cur.TrackID,
				Origin: newDisplacement(*cur, 0, 0),
			})
		} else {
			rt := &tracks[len(tracks)-1]
			rt.Steps = append(rt.Steps, newDisplacement(*cur, cur.X-prev.X, cur.Y-prev.Y))
		}
		prev = cur
	}

	return tracks
}

func newDisplacement(p PositionRecord, dx, dy float64) DisplacementRecord {
	rho, theta := Polar(dx, dy)
	return DisplacementRecord{
		TrackID:    p.TrackID,
		Frame:      float64(p.Frame),
		X:          p.X,
		Y:          p.Y,
		DX:         dx,
		DY:         dy,
		Rho:        rho,
		Theta:      theta,
		Intensity:  p.Intensity,
		FrameCount: 1,
	}
}

// StepCount returns the number of displacement records across raw tracks
func StepCount(tracks []RawTrack) int {
	n := 0
	for _, t := range tracks {
		n += len(t.Steps)
	}
	return n
}
