package main

import (
	"errors"
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
	ConfigFile     string
	Input          string
	FromAggregated string
	OutputDir      string
	Precision      int
	MinPoints      int
	MinLength      float64
	MaxLength      float64
	FrameRate      float64
	MaxLag         int
	Plots          string
	Workbook       string
	Trajectories   string
	MSDPlot        string
	Exclude        string
	CheckHeaders   bool
	Polygon        string
	PolygonFile    string
	RegionName     string
	Serve          bool
	HttpPort       int

	// Set records which flags were given explicitly; only those override the
	// config file.
	Set map[string]bool
}

// Runner is implemented by App and mocked in tests
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunCheckHeaders() error
	RunProcess() error
	RunRegion() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("sptrack: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("sptrack", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file (optional)")
	fs.StringVar(&opts.Input, "input", "", "Instrument export (CSV) to process")
	fs.StringVar(&opts.FromAggregated, "from-aggregated", "", "Reload a previously written aggregated CSV instead of an instrument export")
	fs.StringVar(&opts.OutputDir, "output-dir", "", "Directory for output files")
	fs.IntVar(&opts.Precision, "precision", 3, "Decimal places used to merge coincident positions")
	fs.IntVar(&opts.MinPoints, "min-points", 0, "Reject tracks with fewer points")
	fs.Float64Var(&opts.MinLength, "min-length", 0, "Reject tracks shorter end to end")
	fs.Float64Var(&opts.MaxLength, "max-length", 100, "Reject tracks longer end to end")
	fs.Float64Var(&opts.FrameRate, "frame-rate", 1, "Frames per second, used to convert lags to time")
	fs.IntVar(&opts.MaxLag, "max-lag", 10, "Largest MSD lag written and fitted")
	fs.StringVar(&opts.Plots, "plots", "", "Track plots to render: all, N (negative for all) or FROM-TO (1-based)")
	fs.StringVar(&opts.Workbook, "workbook", "", "Write the MSD table and fit to this xlsx file")
	fs.StringVar(&opts.Trajectories, "trajectories", "", "Write the trajectory export to this JSON file")
	fs.StringVar(&opts.MSDPlot, "msd-plot", "", "Write the averaged MSD plot to this PNG file")
	fs.StringVar(&opts.Exclude, "exclude", "", "Track ids to exclude after filtering, e.g. 3,7")
	fs.BoolVar(&opts.CheckHeaders, "check-headers", false, "Probe the input format and exit")
	fs.StringVar(&opts.Polygon, "polygon", "", "Region vertices as x1,y1;x2,y2;...")
	fs.StringVar(&opts.PolygonFile, "polygon-file", "", "GeoJSON file holding the region polygon")
	fs.StringVar(&opts.RegionName, "region-name", "region", "Name of the extracted region")
	fs.BoolVar(&opts.Serve, "serve", false, "Keep the run open and serve it over HTTP (and MQTT when configured)")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.Input == "" && fs.NArg() > 0 {
		opts.Input = fs.Arg(0)
	}
	opts.Set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.Set[f.Name] = true })

	fmt.Fprintf(out, "sptrack version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.CheckHeaders:
		return app.RunCheckHeaders()
	case opts.Polygon != "" || opts.PolygonFile != "":
		return app.RunRegion()
	case opts.Serve:
		return app.RunService()
	case opts.Input != "" || opts.FromAggregated != "":
		return app.RunProcess()
	}

	fmt.Fprintln(out, "No input given.")
	fmt.Fprintln(out, "Use --input=FILE to process an instrument export")
	fmt.Fprintln(out, "Use --from-aggregated=FILE to reload a previous run")
	fmt.Fprintln(out, "Use --check-headers to probe the input format")
	fmt.Fprintln(out, "Use --polygon or --polygon-file to extract a region")
	fmt.Fprintln(out, "Use --serve to review the run over HTTP and MQTT")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - thresholds, output files and MQTT settings")
	return nil
}
