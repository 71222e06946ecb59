package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
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

	MergeOnly   bool
	SummaryOnly bool
	RenderOnly  bool
	GeoJSONOnly bool
	FetchOnly   bool
	MqttMode    bool
	HttpMode    bool
}

// Application is the set of modes the CLI can dispatch to
type Application interface {
	ApplyOptions(opts AppOptions)
	RunMerge() error
	RunSummary() error
	RunRender() error
	RunGeoJSON() error
	RunFetch() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("gridmerge", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.InputFile, "input", "batch.json", "Batch file for --merge, --summary, --render and --geojson (JSON, gzip or zstd)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file (default: stdout for JSON, slice.<format> for --render)")
	fs.StringVar(&opts.StateCache, "state-cache", ".gridmerge-results.json", "Path to the merged results cache (service mode)")
	fs.StringVar(&opts.Axis, "axis", "", "Slice axis for --render/--geojson: x, y or z (default from config, else z)")
	fs.IntVar(&opts.SliceIndex, "slice", 0, "Plane index along --axis")
	fs.StringVar(&opts.RenderFormat, "format", "png", "Render format: png or svg")
	fs.IntVar(&opts.Workers, "workers", 0, "Merge workers (default from config, else GOMAXPROCS)")
	fs.Float64Var(&opts.ThresholdDeg, "threshold", 0, "Phase dispersion flag threshold in degrees (default from config, else 15)")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	fs.BoolVar(&opts.MergeOnly, "merge", false, "Merge --input and write the result JSON, then exit")
	fs.BoolVar(&opts.SummaryOnly, "summary", false, "Merge --input and print the dispersion summary, then exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Merge --input and render one slice, then exit")
	fs.BoolVar(&opts.GeoJSONOnly, "geojson", false, "Merge --input and export one slice as GeoJSON, then exit")
	fs.BoolVar(&opts.FetchOnly, "fetch", false, "Fetch and merge every apiUrl source from --config, then exit")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "gridmerge version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.MergeOnly:
		return app.RunMerge()
	case opts.SummaryOnly:
		return app.RunSummary()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.GeoJSONOnly:
		return app.RunGeoJSON()
	case opts.FetchOnly:
		return app.RunFetch()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "gridmerge service starting...")
	fmt.Fprintln(out, "Use --merge --input=batch.json to merge a batch file")
	fmt.Fprintln(out, "Use --summary to print phase dispersion statistics")
	fmt.Fprintln(out, "Use --render --axis=z --slice=N to render a dispersion slice")
	fmt.Fprintln(out, "Use --geojson --axis=z --slice=N to export a slice as GeoJSON")
	fmt.Fprintln(out, "Use --fetch to merge every apiUrl source once")
	fmt.Fprintln(out, "Use --mqtt and/or --http to run the service")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, sources, merge and render tuning")
	return nil
}
