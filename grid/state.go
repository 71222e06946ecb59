package grid

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// StateTracker keeps the latest merge result per source for HTTP endpoints
type StateTracker struct {
	mu        sync.RWMutex
	saveMu    sync.Mutex // serialises Update so cache writes land in update order
	results   map[string]*MergeResult
	cachePath string // path to the results cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		results: make(map[string]*MergeResult),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists results to
// the given cache file path. If the file exists, the cached results are
// loaded on creation.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath

	if cachePath == "" {
		return st
	}
	cached, err := LoadResults(cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("warning: failed to load results cache %s: %v", cachePath, err)
		}
		return st
	}
	for src, r := range cached {
		st.results[src] = r
	}
	log.Printf("Loaded %d cached result(s) from %s", len(cached), cachePath)
	return st
}

// sourceKey maps an empty source to a stable key
func sourceKey(src string) string {
	if src == "" {
		return "default"
	}
	return src
}

// Update stores r as the latest result for its source
func (st *StateTracker) Update(r *MergeResult) {
	if r == nil {
		return
	}
	st.saveMu.Lock()
	defer st.saveMu.Unlock()

	st.mu.Lock()
	st.results[sourceKey(r.Source)] = r
	cachePath := st.cachePath
	var snapshot map[string]*MergeResult
	if cachePath != "" {
		snapshot = make(map[string]*MergeResult, len(st.results))
		for k, v := range st.results {
			snapshot[k] = v
		}
	}
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveResults(snapshot, cachePath); err != nil {
			log.Printf("warning: failed to save results cache: %v", err)
		}
	}
}

// Get returns the latest result for a source
func (st *StateTracker) Get(source string) (*MergeResult, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.results[sourceKey(source)]
	return r, ok
}

// All returns a copy of the source -> result map
func (st *StateTracker) All() map[string]*MergeResult {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]*MergeResult, len(st.results))
	for k, v := range st.results {
		out[k] = v
	}
	return out
}

// Sources returns the known source IDs in sorted order
func (st *StateTracker) Sources() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.results))
	for id := range st.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasResults returns true if at least one batch has been merged
func (st *StateTracker) HasResults() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.results) > 0
}

// SaveResults writes the results map to disk as JSON.
func SaveResults(results map[string]*MergeResult, path string) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results cache: %w", err)
	}
	return nil
}

// LoadResults reads a results map from a JSON file on disk. A missing file
// yields an error satisfying os.IsNotExist.
func LoadResults(path string) (map[string]*MergeResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results map[string]*MergeResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("unmarshal results cache: %w", err)
	}
	return results, nil
}
