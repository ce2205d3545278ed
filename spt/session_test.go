package spt

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mock.Mock
}

func (r *changeRecorder) changed(res *Result) {
	r.Called(res.Summary.Retained, res.Excluded)
}

func newTestSession(t *testing.T, cfg *Config, ids ...int) *Session {
	t.Helper()
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	_, err = engine.RunRecords(t.Context(), lineRecords(ids...))
	require.NoError(t, err)
	return NewSession(engine)
}

func TestSession_Exclude(t *testing.T) {
	session := newTestSession(t, nil, 1, 2, 3)
	assert.Equal(t, 3, session.Summary().Retained)

	rec := &changeRecorder{}
	rec.On("changed", 2, []int{1}).Once()
	session.OnChange(rec.changed)

	assert.Equal(t, []int{1}, session.Exclude(1, 42))
	assert.Empty(t, session.Exclude(42), "nothing removed, no callback")

	rec.AssertExpectations(t)
	assert.Equal(t, []int{2, 3}, TrackIDs(session.Result().Tracks))

	_, ok := session.Track(1)
	assert.False(t, ok)
	_, ok = session.Track(2)
	assert.True(t, ok)
}

func TestSession_RegionAndConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMSDLag = 4
	session := newTestSession(t, cfg, 1, 2)

	assert.Equal(t, 4, session.Config().MaxMSDLag)

	region, err := session.Region("top", []Point{{-1, 1.5}, {10, 1.5}, {10, 2.5}, {-1, 2.5}})
	require.NoError(t, err)
	assert.Equal(t, 3, region.Count)
	for _, p := range region.Points {
		assert.Equal(t, 2, p.TrackID)
	}
}

func TestSession_WriteOutputs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Dir = t.TempDir()
	session := newTestSession(t, cfg, 1, 2)
	session.Exclude(2)

	msgs, err := session.WriteOutputs()
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	records, err := LoadAggregatedFile(filepath.Join(cfg.Output.Dir, DefaultAggregatedFile))
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, 1, r.TrackID)
	}
}

func TestSession_ConcurrentAccess(t *testing.T) {
	session := newTestSession(t, nil, 1, 2, 3, 4, 5, 6)
	before := session.Result()

	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(3)
		go func(id int) {
			defer wg.Done()
			session.Exclude(id)
		}(i)
		go func() {
			defer wg.Done()
			_ = session.Result().Summary
			session.Track(3)
		}()
		go func() {
			defer wg.Done()
			res := session.Result()
			assert.NoError(t, WriteMSD(io.Discard, res.MSD, 0))
			assert.NoError(t, WriteMSD(io.Discard, before.MSD, 0))
			_ = fmt.Sprint(res.Excluded, before.Excluded)
		}()
	}
	wg.Wait()

	res := session.Result()
	assert.True(t, res.Empty())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, res.Excluded)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, before.MSD.TrackIDs(), "earlier result is a snapshot")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, TrackIDs(before.Tracks))
	assert.Empty(t, before.Excluded)
}
