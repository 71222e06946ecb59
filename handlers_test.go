package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/gridmerge/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// populatedTracker returns a StateTracker holding the merged test batch
// under source "scanner".
func populatedTracker(t *testing.T) *grid.StateTracker {
	t.Helper()
	r, err := grid.MergeBatch(t.Context(), createTestBatch("b-1"), grid.MergeOptions{})
	require.NoError(t, err)
	st := grid.NewStateTracker()
	st.Update(r)
	return st
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h := newHTTPServer(grid.NewStateTracker(), grid.MergeOptions{}, 0)

	rec := serve(h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, false, status["hasResults"])
}

// ---------------------------------------------------------------------------
// POST /merge
// ---------------------------------------------------------------------------

func TestMerge_StoresResult(t *testing.T) {
	st := grid.NewStateTracker()
	h := newHTTPServer(st, grid.MergeOptions{Workers: 2}, 0)

	body, err := grid.EncodeBatch(createTestBatch("posted"), grid.CompressionGzip)
	require.NoError(t, err)

	rec := serve(h, http.MethodPost, "/merge?source=bench", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result grid.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "posted", result.BatchID)
	assert.Equal(t, "bench", result.Source)

	stored, ok := st.Get("bench")
	require.True(t, ok)
	assert.Equal(t, "posted", stored.BatchID)
}

func TestMerge_Errors(t *testing.T) {
	empty := createTestBatch("bad")
	empty.Groups[1] = [2]int{2, 2}
	emptyBody, err := grid.EncodeBatch(empty, grid.CompressionNone)
	require.NoError(t, err)

	mismatch := createTestBatch("mismatch")
	mismatch.GridIndex = []int{0}
	mismatchBody, err := grid.EncodeBatch(mismatch, grid.CompressionNone)
	require.NoError(t, err)

	huge := createTestBatch("huge")
	huge.Dims = []int{grid.MaxGridDim + 1, 2, 1}
	hugeBody, err := grid.EncodeBatch(huge, grid.CompressionNone)
	require.NoError(t, err)

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"undecodable", []byte("garbage"), http.StatusBadRequest},
		{"dims above max", hugeBody, http.StatusBadRequest},
		{"empty body", nil, http.StatusBadRequest},
		{"empty group", emptyBody, http.StatusUnprocessableEntity},
		{"grid index mismatch", mismatchBody, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := grid.NewStateTracker()
			rec := serve(newHTTPServer(st, grid.MergeOptions{}, 0), http.MethodPost, "/merge", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.False(t, st.HasResults())
		})
	}
}

func TestMerge_MethodNotAllowed(t *testing.T) {
	h := newHTTPServer(grid.NewStateTracker(), grid.MergeOptions{}, 0)
	rec := serve(h, http.MethodGet, "/merge", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ---------------------------------------------------------------------------
// /results and /summary
// ---------------------------------------------------------------------------

func TestResults(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), grid.MergeOptions{}, 0)

	rec := serve(h, http.MethodGet, "/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sources":["scanner"]}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/results/scanner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result grid.MergeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Channels.Len())

	rec = serve(h, http.MethodGet, "/results/other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummary(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), grid.MergeOptions{}, 0)

	rec := serve(h, http.MethodGet, "/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries map[string]grid.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Contains(t, summaries, "scanner")
	assert.Equal(t, 3, summaries["scanner"].Count)
}

// ---------------------------------------------------------------------------
// Slice endpoints
// ---------------------------------------------------------------------------

func TestSlicePNG(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), grid.MergeOptions{}, 10)

	rec := serve(h, http.MethodGet, "/slice.png?source=scanner&axis=z&k=0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	// 2 voxels of 10px plus 8px padding each side
	assert.Equal(t, 2*10+16, img.Bounds().Dx())
}

func TestSliceSVG(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), grid.MergeOptions{}, 0)

	rec := serve(h, http.MethodGet, "/slice.svg?source=scanner&axis=y", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(rec.Body.String(), "<svg"))
}

func TestSliceGeoJSON(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), grid.MergeOptions{DispersionThresholdDeg: 1}, 0)

	rec := serve(h, http.MethodGet, "/slice.geojson?source=scanner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 3)

	flagged := 0
	for _, f := range fc.Features {
		if f.Properties["flagged"] == true {
			flagged++
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestSlice_TooLarge(t *testing.T) {
	b := createTestBatch("wide")
	b.Dims = []int{grid.MaxGridDim, grid.MaxGridDim, 1}
	r, err := grid.MergeBatch(t.Context(), b, grid.MergeOptions{})
	require.NoError(t, err)
	st := grid.NewStateTracker()
	st.Update(r)
	h := newHTTPServer(st, grid.MergeOptions{}, 0)

	for _, target := range []string{"/slice.png?source=scanner", "/slice.svg?source=scanner"} {
		rec := serve(h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, target)
		assert.NotEqual(t, "image/png", rec.Header().Get("Content-Type"))
	}

	// GeoJSON carries only occupied cells and is not pixel bound
	rec := serve(h, http.MethodGet, "/slice.geojson?source=scanner", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSlice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tracker *grid.StateTracker
		target  string
		want    int
	}{
		{"no results", grid.NewStateTracker(), "/slice.png", http.StatusServiceUnavailable},
		{"unknown source", populatedTracker(t), "/slice.svg?source=nope", http.StatusServiceUnavailable},
		{"bad axis", populatedTracker(t), "/slice.png?source=scanner&axis=w", http.StatusBadRequest},
		{"bad k", populatedTracker(t), "/slice.geojson?source=scanner&k=abc", http.StatusBadRequest},
		{"k out of range", populatedTracker(t), "/slice.png?source=scanner&k=4", http.StatusBadRequest},
		{"negative k", populatedTracker(t), "/slice.svg?source=scanner&k=-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newHTTPServer(tt.tracker, grid.MergeOptions{}, 0), http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
