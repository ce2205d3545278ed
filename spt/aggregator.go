package spt

import "math"

// Aggregator buckets displacement records by rounded position. Keys iterate in
// first-insertion order so output is deterministic.
type Aggregator struct {
	precision int
	keys      []AggregationKey
	buckets   map[AggregationKey][]DisplacementRecord
}

// NewAggregator creates an empty aggregator rounding at the given number of
// decimals
func NewAggregator(precision int) *Aggregator {
	return &Aggregator{
		precision: precision,
		buckets:   make(map[AggregationKey][]DisplacementRecord),
	}
}

// Aggregate adds the steps of every raw track to a new aggregator
func Aggregate(raw []RawTrack, precision int) *Aggregator {
	a := NewAggregator(precision)
	a.AddAll(raw)
	return a
}

// RoundTo rounds half away from zero at d decimals
func RoundTo(v float64, d int) float64 {
	scale := math.Pow(10, float64(d))
	return math.Round(v*scale) / scale
}

// KeyFor returns the aggregation key of a record at d decimals
func KeyFor(rec DisplacementRecord, d int) AggregationKey {
	return AggregationKey{X: RoundTo(rec.X, d), Y: RoundTo(rec.Y, d)}
}

// Precision returns the rounding precision in decimals
func (a *Aggregator) Precision() int {
	return a.precision
}

// Add appends a record to the bucket of its rounded position
func (a *Aggregator) Add(rec DisplacementRecord) {
	key := KeyFor(rec, a.precision)
	if _, ok := a.buckets[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.buckets[key] = append(a.buckets[key], rec)
}

// AddAll adds the steps of every raw track. Origins carry no displacement and
// are not aggregated.
func (a *Aggregator) AddAll(raw []RawTrack) {
	for _, rt := range raw {
		for _, step := range rt.Steps {
			a.Add(step)
		}
	}
}

// Keys returns the keys in first-insertion order
func (a *Aggregator) Keys() []AggregationKey {
	keys := make([]AggregationKey, len(a.keys))
	copy(keys, a.keys)
	return keys
}

// Bucket returns a copy of the members stored under a key
func (a *Aggregator) Bucket(key AggregationKey) []DisplacementRecord {
	members := a.buckets[key]
	if members == nil {
		return nil
	}
	out := make([]DisplacementRecord, len(members))
	copy(out, members)
	return out
}

// Len returns the number of distinct keys
func (a *Aggregator) Len() int {
	return len(a.keys)
}

// Collapse merges each bucket into one record, in key order
func (a *Aggregator) Collapse() []DisplacementRecord {
	out := make([]DisplacementRecord, 0, len(a.keys))
	for _, key := range a.keys {
		out = append(out, collapseBucket(a.buckets[key]))
	}
	return out
}

// RemoveTracks drops every member contributed by one of the given tracks.
// Buckets keep their remaining members, so their collapsed record is rebuilt
// from those alone; a bucket is deleted only once it is empty. It returns the
// number of members removed.
func (a *Aggregator) RemoveTracks(ids ...int) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	removed := 0
	kept := a.keys[:0]
	for _, key := range a.keys {
		members := a.buckets[key]
		rest := make([]DisplacementRecord, 0, len(members))
		for _, m := range members {
			if drop[m.TrackID] {
				removed++
				continue
			}
			rest = append(rest, m)
		}
		if len(rest) == 0 {
			delete(a.buckets, key)
			continue
		}
		a.buckets[key] = rest
		kept = append(kept, key)
	}
	a.keys = kept
	return removed
}

func collapseBucket(members []DisplacementRecord) DisplacementRecord {
	if len(members) == 1 {
		return members[0]
	}

	first := members[0]
	var sumDX, sumDY, sumIntensity float64
	for _, m := range members {
		sumDX += m.DX
		sumDY += m.DY
		sumIntensity += m.Intensity
	}
	n := float64(len(members))

	merged := DisplacementRecord{
		TrackID:    first.TrackID,
		Frame:      mergedFrame(members),
		X:          first.X,
		Y:          first.Y,
		DX:         sumDX / n,
		DY:         sumDY / n,
		Intensity:  sumIntensity / n,
		FrameCount: len(members),
	}
	merged.Rho, merged.Theta = Polar(merged.DX, merged.DY)
	return merged
}

// mergedFrame is the frame index reported for a merged record: the mean of the
// member frames. Downstream consumers expect the fractional mean.
func mergedFrame(members []DisplacementRecord) float64 {
	var sum float64
	for _, m := range members {
		sum += m.Frame
	}
	return sum / float64(len(members))
}
