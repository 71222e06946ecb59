package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/gridmerge/grid"
)

// maxBatchBody caps POST /merge request bodies at 256 MB
const maxBatchBody = 256 << 20

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *grid.StateTracker, opts grid.MergeOptions, cellSize int) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasResults bool      `json:"hasResults"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasResults: stateTracker.HasResults(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	// Merge a batch posted in any DecodeBatch encoding
	mux.HandleFunc("POST /merge", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBody))
		if err != nil {
			http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
			return
		}
		batch, err := grid.DecodeBatch(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if src := r.URL.Query().Get("source"); src != "" {
			batch.Source = src
		}

		result, err := grid.MergeBatch(r.Context(), batch, opts)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, grid.ErrInvalidGroup) {
				status = http.StatusUnprocessableEntity
			}
			http.Error(w, err.Error(), status)
			return
		}
		stateTracker.Update(result)
		log.Printf("[HTTP] merged batch %s: %d points, %d flagged",
			result.BatchID, result.Summary.Count, result.Summary.Flagged)
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /results", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Sources []string `json:"sources"`
		}{Sources: stateTracker.Sources()})
	})

	mux.HandleFunc("GET /results/{source}", func(w http.ResponseWriter, r *http.Request) {
		result, ok := stateTracker.Get(r.PathValue("source"))
		if !ok {
			http.Error(w, "No result for source", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /summary", func(w http.ResponseWriter, r *http.Request) {
		summaries := make(map[string]grid.BatchSummary)
		for src, res := range stateTracker.All() {
			summaries[src] = res.Summary
		}
		writeJSON(w, http.StatusOK, summaries)
	})

	mux.HandleFunc("GET /slice.png", func(w http.ResponseWriter, r *http.Request) {
		renderer, ok := sliceRenderer(w, r, stateTracker, opts, cellSize)
		if !ok {
			return
		}
		img, err := renderer.Render()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding slice PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /slice.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer, ok := sliceRenderer(w, r, stateTracker, opts, cellSize)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderSVG(w); err != nil {
			log.Printf("Error rendering slice SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /slice.geojson", func(w http.ResponseWriter, r *http.Request) {
		s, ok := requestedSlice(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(grid.SliceToFeatureCollection(s, opts.ThresholdRad())); err != nil {
			log.Printf("Error encoding slice GeoJSON: %v", err)
		}
	})

	return mux
}

// requestedSlice resolves ?source=&axis=&k= against the tracked results,
// writing an error response and returning false on failure.
func requestedSlice(w http.ResponseWriter, r *http.Request, st *grid.StateTracker) (*grid.Slice, bool) {
	q := r.URL.Query()
	result, ok := st.Get(q.Get("source"))
	if !ok {
		http.Error(w, "No result for source", http.StatusServiceUnavailable)
		return nil, false
	}
	axis, err := grid.ParseAxis(q.Get("axis"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	k := 0
	if ks := q.Get("k"); ks != "" {
		if k, err = strconv.Atoi(ks); err != nil {
			http.Error(w, fmt.Sprintf("invalid k %q", ks), http.StatusBadRequest)
			return nil, false
		}
	}
	s, err := grid.ExtractSlice(result, axis, k)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return s, true
}

func sliceRenderer(w http.ResponseWriter, r *http.Request, st *grid.StateTracker, opts grid.MergeOptions, cellSize int) (*grid.SliceRenderer, bool) {
	s, ok := requestedSlice(w, r, st)
	if !ok {
		return nil, false
	}
	renderer := grid.NewSliceRenderer(s)
	if cellSize > 0 {
		renderer.CellSize = cellSize
	}
	renderer.Threshold = opts.ThresholdRad()
	if _, _, err := renderer.Size(); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, grid.ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return nil, false
	}
	return renderer, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
