package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/gridmerge/grid"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *grid.Config
	StateTracker *grid.StateTracker
	MQTTClient   *grid.MQTTClient
	Publisher    *grid.Publisher
	Out          io.Writer

	// CLI options
	ConfigFile   string
	InputFile    string
	OutputFile   string
	StateCache   string
	Axis         string
	SliceIndex   int
	RenderFormat string
	Workers      int
	ThresholdDeg float64
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: grid.NewStateTracker(),
		Out:          os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.InputFile = opts.InputFile
	a.OutputFile = opts.OutputFile
	a.StateCache = opts.StateCache
	a.Axis = opts.Axis
	a.SliceIndex = opts.SliceIndex
	a.RenderFormat = opts.RenderFormat
	a.Workers = opts.Workers
	a.ThresholdDeg = opts.ThresholdDeg
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadOptionalConfig loads the config file when present. File modes work
// without one.
func (a *App) loadOptionalConfig() error {
	if a.Config != nil || a.ConfigFile == "" {
		return nil
	}
	if _, err := os.Stat(a.ConfigFile); os.IsNotExist(err) {
		return nil
	}
	cfg, err := grid.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
	}
	a.Config = cfg
	log.Printf("Loaded config from %s", a.ConfigFile)
	return nil
}

// mergeOptions combines config tuning with CLI overrides
func (a *App) mergeOptions() grid.MergeOptions {
	opts := grid.MergeOptionsFromConfig(a.Config)
	if a.Workers > 0 {
		opts.Workers = a.Workers
	}
	if a.ThresholdDeg > 0 {
		opts.DispersionThresholdDeg = a.ThresholdDeg
	}
	return opts
}

// mergeInput decodes and merges the --input batch file
func (a *App) mergeInput() (*grid.MergeResult, error) {
	if err := a.loadOptionalConfig(); err != nil {
		return nil, err
	}
	batch, err := grid.ParseBatchFile(a.InputFile)
	if err != nil {
		return nil, fmt.Errorf("reading batch %s: %w", a.InputFile, err)
	}

	start := time.Now()
	result, err := grid.MergeBatch(context.Background(), batch, a.mergeOptions())
	if err != nil {
		return nil, err
	}
	log.Printf("Merged batch %s: %d grid points in %v", result.BatchID, result.Summary.Count, time.Since(start))
	return result, nil
}

// writeOutput writes data to OutputFile, or to Out when no file is given
func (a *App) writeOutput(data []byte, fallback string) error {
	path := a.OutputFile
	if path == "" {
		path = fallback
	}
	if path == "" || path == "-" {
		_, err := a.Out.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(a.Out, "Wrote %s\n", path)
	return nil
}

// RunMerge merges the input batch and writes the result JSON
func (a *App) RunMerge() error {
	result, err := a.mergeInput()
	if err != nil {
		return err
	}
	data, err := grid.EncodeResult(result)
	if err != nil {
		return err
	}
	return a.writeOutput(data, "")
}

// RunSummary merges the input batch and prints its dispersion summary
func (a *App) RunSummary() error {
	result, err := a.mergeInput()
	if err != nil {
		return err
	}
	printSummary(a.Out, result)
	return nil
}

func printSummary(w io.Writer, r *grid.MergeResult) {
	s := r.Summary
	toDeg := 180 / math.Pi
	fmt.Fprintf(w, "=== %s ===\n", r.BatchID)
	if r.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", r.Source)
	}
	fmt.Fprintf(w, "Grid points: %d\n", s.Count)
	fmt.Fprintf(w, "Mean magnitude: %.6g\n", s.MeanMagnitude)
	fmt.Fprintf(w, "Phase dispersion: mean %.2f° median %.2f° p95 %.2f° max %.2f°\n",
		s.MeanDispersion*toDeg, s.MedianDispersion*toDeg, s.P95Dispersion*toDeg, s.MaxDispersion*toDeg)
	fmt.Fprintf(w, "Flagged (> %.1f°): %d\n", s.ThresholdRad*toDeg, s.Flagged)
}

// sliceOfInput merges the input batch and extracts the configured slice
func (a *App) sliceOfInput() (*grid.Slice, error) {
	result, err := a.mergeInput()
	if err != nil {
		return nil, err
	}
	axisName := a.Axis
	if axisName == "" && a.Config != nil {
		axisName = a.Config.Render.Axis
	}
	axis, err := grid.ParseAxis(axisName)
	if err != nil {
		return nil, err
	}
	return grid.ExtractSlice(result, axis, a.SliceIndex)
}

// newRenderer builds a slice renderer using config render settings
func (a *App) newRenderer(s *grid.Slice) *grid.SliceRenderer {
	r := grid.NewSliceRenderer(s)
	if a.Config != nil && a.Config.Render.CellSize > 0 {
		r.CellSize = a.Config.Render.CellSize
	}
	r.Threshold = a.mergeOptions().ThresholdRad()
	return r
}

// RunRender renders one slice of the merged input as PNG or SVG
func (a *App) RunRender() error {
	s, err := a.sliceOfInput()
	if err != nil {
		return err
	}
	renderer := a.newRenderer(s)
	if _, _, err := renderer.Size(); err != nil {
		return err
	}

	out := a.OutputFile
	if out == "" {
		out = "slice." + a.RenderFormat
	}

	switch a.RenderFormat {
	case "png", "":
		if err := renderer.SavePNG(out); err != nil {
			return err
		}
	case "svg":
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer func() { _ = f.Close() }()
		if err := renderer.RenderSVG(f); err != nil {
			return fmt.Errorf("rendering SVG: %w", err)
		}
	default:
		return fmt.Errorf("unknown render format %q", a.RenderFormat)
	}

	fmt.Fprintf(a.Out, "Rendered %s slice %d (%d cells) to %s\n", s.Axis, s.K, len(s.Cells), out)
	return nil
}

// RunGeoJSON exports one slice of the merged input as a FeatureCollection
func (a *App) RunGeoJSON() error {
	s, err := a.sliceOfInput()
	if err != nil {
		return err
	}
	fc := grid.SliceToFeatureCollection(s, a.mergeOptions().ThresholdRad())
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	return a.writeOutput(data, "")
}

// RunFetch fetches every apiUrl source once and prints the summaries
func (a *App) RunFetch() error {
	cfg, err := grid.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.Config = cfg

	results := a.fetchSources(context.Background())
	if len(results) == 0 {
		return fmt.Errorf("no source with an apiUrl produced a result")
	}
	for _, r := range results {
		printSummary(a.Out, r)
	}
	return nil
}

// fetchSources merges every source that has an apiUrl. Failures are logged
// and skipped.
func (a *App) fetchSources(ctx context.Context) []*grid.MergeResult {
	var results []*grid.MergeResult
	for _, src := range a.Config.Sources {
		if src.ApiURL == nil || *src.ApiURL == "" {
			continue
		}
		batch, err := grid.FetchBatchFromAPI(ctx, *src.ApiURL)
		if err != nil {
			log.Printf("Warning: fetching batch for %s: %v", src.ID, err)
			continue
		}
		if r := a.handleBatch(ctx, src.ID, batch, nil); r != nil {
			results = append(results, r)
		}
	}
	return results
}

// handleBatch merges a received batch, records it and publishes it.
// It returns nil when the batch could not be merged.
func (a *App) handleBatch(ctx context.Context, sourceID string, batch *grid.Batch, decodeErr error) *grid.MergeResult {
	if decodeErr != nil {
		log.Printf("Skipping undecodable batch from %s: %v", sourceID, decodeErr)
		return nil
	}
	if batch.Source == "" {
		batch.Source = sourceID
	}

	result, err := grid.MergeBatch(ctx, batch, a.mergeOptions())
	if err != nil {
		log.Printf("Error merging batch %s from %s: %v", batch.ID, sourceID, err)
		return nil
	}
	log.Printf("Merged batch %s from %s: %d points, %d flagged",
		result.BatchID, sourceID, result.Summary.Count, result.Summary.Flagged)

	a.StateTracker.Update(result)

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(result); err != nil {
			log.Printf("Error publishing batch %s: %v", result.BatchID, err)
		}
	}
	return result
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting gridmerge service...")

	cfg, err := grid.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
	}
	a.Config = cfg
	log.Printf("Loaded config from %s", a.ConfigFile)

	cachePath := a.StateCache
	if cachePath != "" && !filepath.IsAbs(cachePath) {
		cachePath = filepath.Join(filepath.Dir(a.ConfigFile), cachePath)
	}
	a.StateTracker = grid.NewStateTrackerWithCache(cachePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.MqttMode {
		client, err := grid.InitMQTT(cfg, func(sourceID string, batch *grid.Batch, err error) {
			a.handleBatch(ctx, sourceID, batch, err)
		})
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = grid.NewPublisher(client.GetClient())
			a.Publisher.SetPrefix(cfg.MQTT.PublishPrefix)
			defer client.Disconnect()
		}
	}

	go a.fetchSources(ctx)

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.HttpPort),
			Handler:           newHTTPServer(a.StateTracker, a.mergeOptions(), cfg.Render.CellSize),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[HTTP] server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] shutdown error: %v", err)
		}
	}
	return nil
}
