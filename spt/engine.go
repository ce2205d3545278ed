package spt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Summary counts what a run consumed and kept
type Summary struct {
	RunID             string    `json:"runId"`
	Source            string    `json:"source,omitempty"`
	TotalRows         int       `json:"totalRows"`
	TotalTracks       int       `json:"totalTracks"`
	Retained          int       `json:"retained"`
	Rejected          int       `json:"rejected"`
	Excluded          int       `json:"excluded"`
	AggregatedRecords int       `json:"aggregatedRecords"`
	MergedRecords     int       `json:"mergedRecords"`
	CompletedAt       time.Time `json:"completedAt"`
}

// Result is the outcome of a run. Status holds the human-readable lines a
// caller shows the analyst.
type Result struct {
	Summary  Summary              `json:"summary"`
	Records  []DisplacementRecord `json:"-"`
	Tracks   []Track              `json:"-"`
	Rejected []int                `json:"rejected"`
	Excluded []int                `json:"excluded"`
	MSD      MSDTable             `json:"-"`
	Average  []MSDPoint           `json:"average"`
	Fit      *DiffusionFit        `json:"fit,omitempty"`
	Status   []string             `json:"status"`
}

// Empty reports whether no track survived
func (r *Result) Empty() bool {
	return len(r.Tracks) == 0
}

// Engine owns the state of one processing run. It is not safe for concurrent
// use; Session adds locking for the review service.
type Engine struct {
	cfg      Config
	runID    string
	source   string
	progress ProgressFunc

	rows     int
	total    int
	raw      []RawTrack
	agg      *Aggregator
	tracks   []Track
	rejected []int
	excluded []int
	msd      MSDTable
	status   []string
	done     time.Time
}

// NewEngine creates an engine for one run. A nil config uses the defaults.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		cfg:   *cfg,
		runID: uuid.NewString(),
		msd:   make(MSDTable),
	}, nil
}

// SetProgress registers a callback receiving per-track MSD progress
func (e *Engine) SetProgress(fn ProgressFunc) {
	e.progress = fn
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// RunID returns the unique id of this run
func (e *Engine) RunID() string {
	return e.runID
}

// Run parses the input file and processes its records
func (e *Engine) Run(ctx context.Context, path string) (*Result, error) {
	e.source = path
	records, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	Logf("[engine] %s: %d rows read", path, len(records))
	return e.RunRecords(ctx, records)
}

// RunRecords processes already parsed records. If ctx is cancelled during the
// MSD stage the partial result is returned together with the context error.
func (e *Engine) RunRecords(ctx context.Context, records []PositionRecord) (*Result, error) {
	e.rows = len(records)
	e.status = nil
	e.excluded = nil

	e.raw = BuildDisplacements(records)
	e.agg = Aggregate(e.raw, e.cfg.DecimalPrecision)
	tracks := AssembleTracks(e.raw, e.agg.Collapse())
	e.total = len(tracks)

	retained, rejected := FilterTracks(tracks, e.cfg.FilterOptions())
	e.rejected = rejected
	e.tracks = retained
	if removed := e.agg.RemoveTracks(rejected...); removed > 0 {
		Logf("[engine] removed %d aggregated steps of %d rejected tracks", removed, len(rejected))
		e.tracks = e.reassemble(TrackIDs(retained))
	}
	e.addStatus("Processed %d rows in %d tracks", e.rows, e.total)
	e.addStatus("Retained %d tracks, rejected %d", len(e.tracks), len(e.rejected))

	msd, err := BuildMSDTable(ctx, e.tracks, e.progress)
	e.msd = msd
	e.done = time.Now()
	if err != nil {
		e.addStatus("MSD halted after %d of %d tracks", len(msd), len(e.tracks))
		return e.Result(), err
	}
	return e.Result(), nil
}

// reassemble rebuilds the given tracks from their origins and what the
// aggregator still holds. Shared positions whose other members were removed
// collapse to the remaining members only.
func (e *Engine) reassemble(ids []int) []Track {
	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var raw []RawTrack
	for _, rt := range e.raw {
		if keep[rt.ID] {
			raw = append(raw, rt)
		}
	}

	assembled := AssembleTracks(raw, e.agg.Collapse())
	tracks := make([]Track, 0, len(assembled))
	for _, t := range assembled {
		if !keep[t.ID] {
			continue
		}
		t.SortByFrame()
		tracks = append(tracks, t)
	}
	return tracks
}

// NewEngineFromAggregated rebuilds an engine from previously written
// aggregated records. The records are taken as already filtered; tracks are
// regrouped by id and their MSD recomputed.
func NewEngineFromAggregated(ctx context.Context, cfg *Config, records []DisplacementRecord) (*Engine, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	e.agg = NewAggregator(e.cfg.DecimalPrecision)
	byID := make(map[int]*Track)
	var ids []int
	for _, rec := range records {
		e.agg.Add(rec)
		t, ok := byID[rec.TrackID]
		if !ok {
			t = &Track{ID: rec.TrackID}
			byID[rec.TrackID] = t
			ids = append(ids, rec.TrackID)
		}
		t.Points = append(t.Points, rec)
		e.rows += rec.FrameCount
	}
	sort.Ints(ids)
	for _, id := range ids {
		t := byID[id]
		t.SortByFrame()
		e.tracks = append(e.tracks, *t)
	}
	e.total = len(e.tracks)
	e.addStatus("Loaded %d aggregated records in %d tracks", len(records), e.total)
	if e.total > 0 {
		e.addStatus("Reloaded tracks lack their origin rows and have one point fewer than when written")
	}

	msd, err := BuildMSDTable(ctx, e.tracks, e.progress)
	e.msd = msd
	e.done = time.Now()
	if err != nil {
		return e, err
	}
	return e, nil
}

// Exclude removes tracks from the retained set, the aggregated records and
// the MSD table. Unknown ids are ignored. It returns the ids actually removed.
func (e *Engine) Exclude(ids ...int) []int {
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var removed []int
	kept := make([]Track, 0, len(e.tracks))
	for _, t := range e.tracks {
		if drop[t.ID] {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		return nil
	}
	e.tracks = kept

	// Tracks, table and excluded ids are replaced, never edited in place:
	// earlier results keep referring to the old ones.
	e.msd = e.msd.Without(removed...)
	if e.agg != nil && e.agg.RemoveTracks(removed...) > 0 && e.raw != nil {
		e.tracks = e.reassemble(TrackIDs(kept))
		e.msd, _ = BuildMSDTable(context.Background(), e.tracks, nil)
	}
	excluded := make([]int, 0, len(e.excluded)+len(removed))
	excluded = append(excluded, e.excluded...)
	excluded = append(excluded, removed...)
	sort.Ints(excluded)
	e.excluded = excluded
	e.done = time.Now()
	e.addStatus("Excluded tracks %v", removed)
	Logf("[engine] excluded tracks %v, %d remain", removed, len(e.tracks))
	return removed
}

// Track returns a retained track by id
func (e *Engine) Track(id int) (Track, bool) {
	i := sort.Search(len(e.tracks), func(i int) bool { return e.tracks[i].ID >= id })
	if i < len(e.tracks) && e.tracks[i].ID == id {
		return e.tracks[i], true
	}
	return Track{}, false
}

// Region extracts the aggregated records inside a polygon
func (e *Engine) Region(name string, vertices []Point) (Region, error) {
	region, err := ExtractRegion(e.records(), vertices)
	if err != nil {
		return Region{}, err
	}
	region.Name = name
	return region, nil
}

func (e *Engine) records() []DisplacementRecord {
	if e.agg == nil {
		return nil
	}
	return e.agg.Collapse()
}

// Result assembles the current state of the run. The returned slices and MSD
// table are copies the caller may keep across later calls to Exclude.
func (e *Engine) Result() *Result {
	records := e.records()
	merged := 0
	for _, r := range records {
		if r.FrameCount > 1 {
			merged++
		}
	}

	res := &Result{
		Summary: Summary{
			RunID:             e.runID,
			Source:            e.source,
			TotalRows:         e.rows,
			TotalTracks:       e.total,
			Retained:          len(e.tracks),
			Rejected:          len(e.rejected),
			Excluded:          len(e.excluded),
			AggregatedRecords: len(records),
			MergedRecords:     merged,
			CompletedAt:       e.done,
		},
		Records:  records,
		Tracks:   slices.Clone(e.tracks),
		Rejected: slices.Clone(e.rejected),
		Excluded: slices.Clone(e.excluded),
		MSD:      e.msd.Clone(),
		Average:  AverageMSD(e.msd, e.cfg.MaxMSDLag),
	}
	res.Status = append(res.Status, e.status...)

	if res.Empty() {
		res.Status = append(res.Status, ErrEmptyResult.Error())
		return res
	}

	fit, err := FitDiffusion(res.Average, e.cfg.FrameRate)
	switch {
	case err == nil:
		res.Fit = &fit
		res.Status = append(res.Status, fmt.Sprintf("MSD fit: slope=%g intercept=%g r2=%g", fit.Slope, fit.Intercept, fit.RSquared))
	case errors.Is(err, ErrInsufficientLags):
		res.Status = append(res.Status, "MSD fit skipped: fewer than two lags")
	default:
		res.Status = append(res.Status, fmt.Sprintf("MSD fit failed: %v", err))
	}
	return res
}

func (e *Engine) addStatus(format string, args ...interface{}) {
	e.status = append(e.status, fmt.Sprintf(format, args...))
}

// WriteOutputs writes every output the config names. A failing output does
// not stop the others; the returned error joins every WriteError.
func (e *Engine) WriteOutputs(res *Result) ([]string, error) {
	var msgs []string
	var errs []error

	record := func(msg string, err error) {
		if err != nil {
			Logf("[engine] %v", err)
			errs = append(errs, err)
			return
		}
		if msg != "" {
			msgs = append(msgs, msg)
		}
	}

	if path := e.cfg.OutputPath(e.cfg.Output.AggregatedFile); path != "" {
		record(WriteAggregatedFile(path, res.Records, e.cfg.DecimalPrecision))
	}
	if path := e.cfg.OutputPath(e.cfg.Output.MSDFile); path != "" {
		record(WriteMSDFile(path, res.MSD, e.cfg.MaxMSDLag))
	}
	if path := e.cfg.OutputPath(e.cfg.Output.WorkbookFile); path != "" {
		record(WriteMSDWorkbook(path, res.MSD, res.Average, res.Fit, e.cfg.MaxMSDLag))
	}
	if path := e.cfg.OutputPath(e.cfg.Output.TrajectoryFile); path != "" && !res.Empty() {
		record(WriteTrajectoriesFile(path, res.Tracks, e.cfg.FrameRate))
	}

	return msgs, errors.Join(errs...)
}
