package spt

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FilterOptions holds the track-quality thresholds
type FilterOptions struct {
	MinPoints int
	MinLength float64
	MaxLength float64
}

// DefaultFilterOptions retains every track up to the default maximum length
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		MinPoints: DefaultMinPoints,
		MinLength: DefaultMinLength,
		MaxLength: DefaultMaxLength,
	}
}

// AssembleTracks builds one Track per track id from the origins of the raw
// tracks and the collapsed aggregator output. Each track starts with the
// origin of the first raw track carrying its id, followed by the collapsed
// records attributed to it in aggregator order. Tracks are returned sorted by
// id.
func AssembleTracks(raw []RawTrack, collapsed []DisplacementRecord) []Track {
	byID := make(map[int]*Track)
	var ids []int

	for _, rt := range raw {
		if _, ok := byID[rt.ID]; ok {
			continue
		}
		byID[rt.ID] = &Track{ID: rt.ID, Points: []DisplacementRecord{rt.Origin}}
		ids = append(ids, rt.ID)
	}

	for _, rec := range collapsed {
		t, ok := byID[rec.TrackID]
		if !ok {
			t = &Track{ID: rec.TrackID}
			byID[rec.TrackID] = t
			ids = append(ids, rec.TrackID)
		}
		t.Points = append(t.Points, rec)
	}

	sort.Ints(ids)
	tracks := make([]Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, *byID[id])
	}
	return tracks
}

// SortByFrame orders the points by frame. Equal frames keep their order.
func (t *Track) SortByFrame() {
	sort.SliceStable(t.Points, func(i, j int) bool {
		return t.Points[i].Frame < t.Points[j].Frame
	})
}

// Length returns the end-to-end distance between the first and last point.
// The track must already be sorted by frame.
func (t Track) Length() float64 {
	if len(t.Points) < 2 {
		return 0
	}
	first := t.Points[0]
	last := t.Points[len(t.Points)-1]
	return planar.Distance(orb.Point{first.X, first.Y}, orb.Point{last.X, last.Y})
}

// LineString returns the track as an orb line string in frame order
func (t Track) LineString() orb.LineString {
	ls := make(orb.LineString, len(t.Points))
	for i, p := range t.Points {
		ls[i] = orb.Point{p.X, p.Y}
	}
	return ls
}

// Retains reports whether a track with the given point count and length passes
func (o FilterOptions) Retains(points int, length float64) bool {
	return points >= o.MinPoints && length >= o.MinLength && length <= o.MaxLength
}

// FilterTracks sorts each track by frame and splits the set into retained
// tracks and the sorted ids of rejected ones
func FilterTracks(tracks []Track, opts FilterOptions) ([]Track, []int) {
	retained := make([]Track, 0, len(tracks))
	var rejected []int

	for _, t := range tracks {
		t.SortByFrame()
		if opts.Retains(t.Len(), t.Length()) {
			retained = append(retained, t)
			continue
		}
		rejected = append(rejected, t.ID)
	}

	sort.Ints(rejected)
	return retained, rejected
}

// TrackIDs returns the ids of the tracks in order
func TrackIDs(tracks []Track) []int {
	ids := make([]int, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
