package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/sptrack/spt"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// testRecords returns two five-point tracks
func testRecords() []spt.PositionRecord {
	var recs []spt.PositionRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, spt.PositionRecord{TrackID: 1, Frame: i, X: float64(i), Y: float64(i / 2), Intensity: 10})
	}
	for i := 0; i < 5; i++ {
		recs = append(recs, spt.PositionRecord{TrackID: 2, Frame: i, X: 10 + float64(i)/2, Y: 10, Intensity: 5})
	}
	return recs
}

func newTestSession(t *testing.T) *spt.Session {
	t.Helper()
	engine, err := spt.NewEngine(nil)
	require.NoError(t, err)
	_, err = engine.RunRecords(t.Context(), testRecords())
	require.NoError(t, err)
	return spt.NewSession(engine)
}

func serve(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	h := newHTTPServer(newTestSession(t))
	w := serve(t, h, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["tracks"])
	assert.NotEmpty(t, body["runId"])
}

func TestSummaryEndpoint(t *testing.T) {
	h := newHTTPServer(newTestSession(t))
	w := serve(t, h, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res spt.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Summary.Retained)
	assert.Equal(t, 10, res.Summary.TotalRows)
	assert.Len(t, res.Average, 3)
	require.NotNil(t, res.Fit)
}

func TestTracksEndpoints(t *testing.T) {
	h := newHTTPServer(newTestSession(t))

	t.Run("list", func(t *testing.T) {
		w := serve(t, h, http.MethodGet, "/tracks", "")
		require.Equal(t, http.StatusOK, w.Code)
		var tracks []struct {
			ID     int `json:"id"`
			Points int `json:"points"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tracks))
		require.Len(t, tracks, 2)
		assert.Equal(t, 1, tracks[0].ID)
		assert.Equal(t, 5, tracks[0].Points)
	})

	t.Run("one", func(t *testing.T) {
		w := serve(t, h, http.MethodGet, "/tracks/2", "")
		require.Equal(t, http.StatusOK, w.Code)
		var track struct {
			ID     int                `json:"id"`
			MSD    map[string]float64 `json:"msd"`
			Points []json.RawMessage  `json:"points"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &track))
		assert.Equal(t, 2, track.ID)
		assert.Len(t, track.Points, 5)
		assert.Len(t, track.MSD, 3)
	})

	t.Run("plot", func(t *testing.T) {
		w := serve(t, h, http.MethodGet, "/tracks/1/plot.png", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))
	})

	t.Run("unknown", func(t *testing.T) {
		w := serve(t, h, http.MethodGet, "/tracks/42", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := serve(t, h, http.MethodGet, "/tracks/abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestExcludeEndpoint(t *testing.T) {
	session := newTestSession(t)
	h := newHTTPServer(session)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
		wantLeft   int
	}{
		{"json body", "/exclude", `{"tracks":[1]}`, http.StatusOK, 1},
		{"unknown id", "/exclude", `[99]`, http.StatusOK, 1},
		{"query", "/exclude?tracks=2", "", http.StatusOK, 0},
		{"garbage", "/exclude", `tracks please`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, h, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLeft, session.Summary().Retained)
		})
	}

	w := serve(t, h, http.MethodGet, "/exclude", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTableEndpoints(t *testing.T) {
	h := newHTTPServer(newTestSession(t))

	w := serve(t, h, http.MethodGet, "/aggregated.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, strings.Join(spt.AggregatedHeader, ","), lines[0])
	assert.Len(t, lines, 9)

	w = serve(t, h, http.MethodGet, "/msd.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines = strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Equal(t, "dT,track1,track2", lines[0])
	assert.Len(t, lines, 11)

	w = serve(t, h, http.MethodGet, "/msd.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestRegionEndpoints(t *testing.T) {
	h := newHTTPServer(newTestSession(t))
	polygon := "?polygon=9,9;13,9;13,11;9,11&name=right"

	w := serve(t, h, http.MethodGet, "/region.csv"+polygon, "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 5)

	w = serve(t, h, http.MethodGet, "/region.png"+polygon, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = serve(t, h, http.MethodGet, "/region.geojson"+polygon, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 5)

	w = serve(t, h, http.MethodGet, "/region.png?polygon=100,100;101,100;101,101", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, h, http.MethodGet, "/region.csv?polygon=1,1;2,2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, h, http.MethodGet, "/region.csv?v=9,9&v=13,9&v=13,11&v=9,11", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, lines, strings.Split(strings.TrimSpace(w.Body.String()), "\n"))

	w = serve(t, h, http.MethodGet, "/region.csv?polygon=9,9%3B13,9%3B13,11%3B9,11", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 5)

	w = serve(t, h, http.MethodGet, "/region.csv?polygon=%zz", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegionParams(t *testing.T) {
	tests := []struct {
		raw         string
		wantPolygon string
		wantName    string
		wantErr     bool
	}{
		{"polygon=0,0;1,0;1,1&name=cell", "0,0;1,0;1,1", "cell", false},
		{"name=a&polygon=0,0;1,0;1,1&name=b", "0,0;1,0;1,1", "a", false},
		{"v=0,0&v=1,0&v=1,1", "0,0;1,0;1,1", "", false},
		{"polygon=0%2C0%3B1%2C0%3B1%2C1&name=two+words", "0,0;1,0;1,1", "two words", false},
		{"", "", "", false},
		{"polygon=%zz", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			polygon, name, err := regionParams(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPolygon, polygon)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
