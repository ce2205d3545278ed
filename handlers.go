package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kwv/sptrack/spt"
)

// maxExcludeBody bounds the body of an exclude request
const maxExcludeBody = 64 << 10

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(session *spt.Session) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		summary := session.Summary()
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			RunID     string    `json:"runId"`
			Tracks    int       `json:"tracks"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			RunID:     summary.RunID,
			Tracks:    summary.Retained,
		}
		writeJSON(w, status)
	})

	// Summary, status lines and diffusion fit
	mux.HandleFunc("GET /summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, session.Result())
	})

	mux.HandleFunc("GET /tracks", func(w http.ResponseWriter, r *http.Request) {
		res := session.Result()
		type trackInfo struct {
			ID     int     `json:"id"`
			Points int     `json:"points"`
			Length float64 `json:"length"`
		}
		tracks := make([]trackInfo, 0, len(res.Tracks))
		for _, t := range res.Tracks {
			tracks = append(tracks, trackInfo{ID: t.ID, Points: t.Len(), Length: t.Length()})
		}
		writeJSON(w, tracks)
	})

	mux.HandleFunc("GET /tracks/{id}", func(w http.ResponseWriter, r *http.Request) {
		t, ok := lookupTrack(w, r, session)
		if !ok {
			return
		}
		msd := session.Result().MSD[t.ID]
		lags := make(map[string]float64, len(msd))
		for lag, v := range msd {
			lags[strconv.Itoa(lag)] = v
		}
		writeJSON(w, struct {
			ID     int                      `json:"id"`
			Length float64                  `json:"length"`
			Points []spt.DisplacementRecord `json:"points"`
			MSD    map[string]float64       `json:"msd"`
		}{t.ID, t.Length(), t.Points, lags})
	})

	mux.HandleFunc("GET /tracks/{id}/plot.png", func(w http.ResponseWriter, r *http.Request) {
		t, ok := lookupTrack(w, r, session)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := spt.TrackPlot(t).WritePNG(w); err != nil {
			log.Printf("[HTTP] Error encoding track %d plot: %v", t.ID, err)
		}
	})

	// Exclude tracks by body ({"tracks":[..]}, [..] or "1,2") or ?tracks=
	mux.HandleFunc("POST /exclude", func(w http.ResponseWriter, r *http.Request) {
		payload := []byte(r.URL.Query().Get("tracks"))
		if len(payload) == 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxExcludeBody))
			if err != nil {
				http.Error(w, "Error reading body", http.StatusBadRequest)
				return
			}
			payload = body
		}
		ids, err := spt.ParseExcludePayload(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		removed := session.Exclude(ids...)
		log.Printf("[HTTP] /exclude %v removed %v", ids, removed)
		writeJSON(w, struct {
			Requested []int       `json:"requested"`
			Removed   []int       `json:"removed"`
			Summary   spt.Summary `json:"summary"`
		}{ids, removed, session.Summary()})
	})

	mux.HandleFunc("GET /aggregated.csv", func(w http.ResponseWriter, r *http.Request) {
		res := session.Result()
		w.Header().Set("Content-Type", "text/csv")
		if err := spt.WriteAggregated(w, res.Records, session.Config().DecimalPrecision); err != nil {
			log.Printf("[HTTP] Error writing aggregated records: %v", err)
		}
	})

	mux.HandleFunc("GET /msd.csv", func(w http.ResponseWriter, r *http.Request) {
		res := session.Result()
		w.Header().Set("Content-Type", "text/csv")
		if err := spt.WriteMSD(w, res.MSD, session.Config().MaxMSDLag); err != nil {
			log.Printf("[HTTP] Error writing MSD table: %v", err)
		}
	})

	mux.HandleFunc("GET /msd.png", func(w http.ResponseWriter, r *http.Request) {
		res := session.Result()
		if len(res.Average) == 0 {
			http.Error(w, "No MSD available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := spt.WriteMSDPlot(w, res.Average, res.Fit, session.Config().FrameRate); err != nil {
			log.Printf("[HTTP] Error rendering MSD plot: %v", err)
		}
	})

	mux.HandleFunc("GET /region.csv", func(w http.ResponseWriter, r *http.Request) {
		region, ok := extractRegion(w, r, session)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		if err := spt.WriteAggregated(w, region.Points, session.Config().DecimalPrecision); err != nil {
			log.Printf("[HTTP] Error writing region: %v", err)
		}
	})

	mux.HandleFunc("GET /region.png", func(w http.ResponseWriter, r *http.Request) {
		region, ok := extractRegion(w, r, session)
		if !ok {
			return
		}
		if region.Count == 0 {
			http.Error(w, "No points inside polygon", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := spt.NewHeatMapRenderer(region).RenderToPNG(w); err != nil {
			log.Printf("[HTTP] Error rendering region heat map: %v", err)
		}
	})

	mux.HandleFunc("GET /region.geojson", func(w http.ResponseWriter, r *http.Request) {
		region, ok := extractRegion(w, r, session)
		if !ok {
			return
		}
		data, err := region.FeatureCollection().MarshalJSON()
		if err != nil {
			http.Error(w, "Error encoding region", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing region GeoJSON: %v", err)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

func lookupTrack(w http.ResponseWriter, r *http.Request, session *spt.Session) (spt.Track, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return spt.Track{}, false
	}
	t, ok := session.Track(id)
	if !ok {
		http.Error(w, "Track not found", http.StatusNotFound)
		return spt.Track{}, false
	}
	return t, true
}

// extractRegion reads the region polygon and optional ?name= from the query.
// Vertices come either as ?polygon=x1,y1;x2,y2;... or as repeated ?v=x,y.
func extractRegion(w http.ResponseWriter, r *http.Request, session *spt.Session) (spt.Region, bool) {
	polygon, name, err := regionParams(r.URL.RawQuery)
	if err != nil {
		http.Error(w, "Invalid query: "+err.Error(), http.StatusBadRequest)
		return spt.Region{}, false
	}
	vertices, err := spt.ParsePolygon(polygon)
	if err != nil {
		http.Error(w, "Invalid polygon: "+err.Error(), http.StatusBadRequest)
		return spt.Region{}, false
	}
	if name == "" {
		name = "region"
	}
	region, err := session.Region(name, vertices)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return spt.Region{}, false
	}
	return region, true
}

// regionParams splits the raw query on '&' only. url.ParseQuery drops any
// pair containing ';', which the polygon syntax uses between vertices.
func regionParams(rawQuery string) (polygon, name string, err error) {
	var vs []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if key, err = url.QueryUnescape(key); err != nil {
			return "", "", err
		}
		if value, err = url.QueryUnescape(value); err != nil {
			return "", "", err
		}
		switch key {
		case "polygon":
			if polygon == "" {
				polygon = value
			}
		case "name":
			if name == "" {
				name = value
			}
		case "v":
			vs = append(vs, value)
		}
	}
	if polygon == "" {
		polygon = strings.Join(vs, ";")
	}
	return polygon, name, nil
}
