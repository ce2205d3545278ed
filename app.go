package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/kwv/sptrack/spt"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *spt.Config
	MQTTClient *spt.MQTTClient
	Publisher  *spt.Publisher
	Out        io.Writer

	Opts AppOptions

	session atomic.Pointer[spt.Session]
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Opts = opts
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.Out, format, args...)
}

// loadConfig reads the YAML config when present and applies the flags that
// were given explicitly. A missing config file is only an error when --config
// was passed.
func (a *App) loadConfig() error {
	cfg := spt.DefaultConfig()
	if _, err := os.Stat(a.Opts.ConfigFile); err == nil {
		cfg, err = spt.LoadConfig(a.Opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", a.Opts.ConfigFile, err)
		}
		log.Printf("Loaded config from %s", a.Opts.ConfigFile)
	} else if a.Opts.Set["config"] {
		return fmt.Errorf("config file not found: %s", a.Opts.ConfigFile)
	}

	set := a.Opts.Set
	if set["precision"] {
		cfg.DecimalPrecision = a.Opts.Precision
	}
	if set["min-points"] {
		cfg.MinPoints = a.Opts.MinPoints
	}
	if set["min-length"] {
		cfg.MinLength = a.Opts.MinLength
	}
	if set["max-length"] {
		cfg.MaxLength = a.Opts.MaxLength
	}
	if set["frame-rate"] {
		cfg.FrameRate = a.Opts.FrameRate
	}
	if set["max-lag"] {
		cfg.MaxMSDLag = a.Opts.MaxLag
	}
	if set["output-dir"] {
		cfg.Output.Dir = a.Opts.OutputDir
	}
	if set["plots"] {
		cfg.Output.Plots = a.Opts.Plots
	}
	if set["workbook"] {
		cfg.Output.WorkbookFile = a.Opts.Workbook
	}
	if set["trajectories"] {
		cfg.Output.TrajectoryFile = a.Opts.Trajectories
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.Config = cfg
	return nil
}

// connectMQTT starts the MQTT client when a broker is configured. Without a
// broker the run continues without publishing.
func (a *App) connectMQTT(handler spt.ExcludeHandler) error {
	client, err := spt.InitMQTT(&a.Config.MQTT, handler)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if client == nil {
		return nil
	}
	a.MQTTClient = client
	a.Publisher = spt.NewPublisher(client.GetClient(), &a.Config.MQTT)
	log.Printf("MQTT publishing to %s/*", a.Publisher.Prefix())
	return nil
}

func (a *App) disconnect() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

// RunCheckHeaders probes the input format without processing it
func (a *App) RunCheckHeaders() error {
	if a.Opts.Input == "" {
		return fmt.Errorf("--check-headers needs --input")
	}
	format, err := spt.CheckInputHeaders(a.Opts.Input)
	if err != nil {
		a.printf("Input %s is not usable: %v\n", a.Opts.Input, err)
		return err
	}
	a.printf("Input %s: %s\n", a.Opts.Input, format)
	return nil
}

// RunProcess runs the pipeline once and writes every configured output
func (a *App) RunProcess() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.connectMQTT(nil); err != nil {
		log.Printf("Warning: %v", err)
	}
	defer a.disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, res, err := a.process(ctx)
	if err != nil {
		return err
	}
	return a.writeOutputs(ctx, engine, res)
}

// process builds the engine from the input or from a previous aggregated
// output and applies the --exclude list
func (a *App) process(ctx context.Context) (*spt.Engine, *spt.Result, error) {
	var engine *spt.Engine
	var res *spt.Result

	switch {
	case a.Opts.FromAggregated != "":
		records, err := spt.LoadAggregatedFile(a.Opts.FromAggregated)
		if err != nil {
			return nil, nil, err
		}
		engine, err = spt.NewEngineFromAggregated(ctx, a.Config, records)
		if err != nil {
			return nil, nil, err
		}
		res = engine.Result()
	case a.Opts.Input != "":
		var err error
		engine, err = spt.NewEngine(a.Config)
		if err != nil {
			return nil, nil, err
		}
		engine.SetProgress(a.progress(engine.RunID(), "msd"))
		res, err = engine.Run(ctx, a.Opts.Input)
		if err != nil {
			if res != nil {
				a.printStatus(res)
			}
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("no input: use --input or --from-aggregated")
	}

	if a.Opts.Exclude != "" {
		ids, err := spt.ParseExcludePayload([]byte(a.Opts.Exclude))
		if err != nil {
			return nil, nil, fmt.Errorf("parsing --exclude: %w", err)
		}
		if removed := engine.Exclude(ids...); len(removed) > 0 {
			res = engine.Result()
		}
	}

	a.printStatus(res)
	return engine, res, nil
}

// progress returns a callback printing MSD progress and publishing it when
// MQTT is connected
func (a *App) progress(runID, stage string) spt.ProgressFunc {
	var publish spt.ProgressFunc
	if a.Publisher != nil {
		publish = a.Publisher.ProgressFunc(runID, stage)
	}
	return func(done, total int) {
		if done == total || done%100 == 0 {
			a.printf("%s: %d/%d tracks\n", stage, done, total)
		}
		if publish != nil {
			publish(done, total)
		}
	}
}

func (a *App) printStatus(res *spt.Result) {
	for _, line := range res.Status {
		a.printf("%s\n", line)
	}
}

// writeOutputs writes the tables, plots and MQTT summary of a result
func (a *App) writeOutputs(ctx context.Context, engine *spt.Engine, res *spt.Result) error {
	msgs, err := engine.WriteOutputs(res)
	for _, msg := range msgs {
		a.printf("%s\n", msg)
	}
	if err != nil {
		return err
	}

	if a.Config.Output.Plots != "" && !res.Empty() {
		dir := a.Config.Output.Dir
		if dir == "" {
			dir = "."
		}
		msgs, err := spt.WriteTrackPlots(ctx, dir, res.Tracks, a.Config.Output.Plots, a.progress(res.Summary.RunID, "plots"))
		for _, msg := range msgs {
			a.printf("%s\n", msg)
		}
		if err != nil {
			return err
		}
	}

	if a.Opts.MSDPlot != "" && !res.Empty() {
		msg, err := spt.SaveMSDPlot(a.Config.OutputPath(a.Opts.MSDPlot), res.Average, res.Fit, a.Config.FrameRate)
		if err != nil {
			return err
		}
		a.printf("%s\n", msg)
	}

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(res); err != nil {
			log.Printf("Warning: publishing result: %v", err)
		}
	}
	return nil
}

// RunRegion extracts the records inside a polygon and writes the region CSV,
// its heat map and a GeoJSON view
func (a *App) RunRegion() error {
	if err := a.loadConfig(); err != nil {
		return err
	}

	var vertices []spt.Point
	var err error
	if a.Opts.PolygonFile != "" {
		vertices, err = spt.LoadPolygonGeoJSON(a.Opts.PolygonFile)
	} else {
		vertices, err = spt.ParsePolygon(a.Opts.Polygon)
	}
	if err != nil {
		return fmt.Errorf("reading polygon: %w", err)
	}

	engine, _, err := a.process(context.Background())
	if err != nil {
		return err
	}

	name := a.Opts.RegionName
	region, err := engine.Region(name, vertices)
	if err != nil {
		return err
	}

	msg, err := spt.WriteRegionFile(a.Config.OutputPath(name+".csv"), region, a.Config.DecimalPrecision)
	if err != nil {
		return err
	}
	a.printf("%s\n", msg)

	if region.Count == 0 {
		return nil
	}
	msg, err = spt.NewHeatMapRenderer(region).Save(a.Config.OutputPath(name + ".png"))
	if err != nil {
		return err
	}
	a.printf("%s\n", msg)

	geoPath := a.Config.OutputPath(name + ".geojson")
	if err := spt.WriteRegionGeoJSON(geoPath, region); err != nil {
		return err
	}
	a.printf("Region GeoJSON written to %s\n", geoPath)
	return nil
}

// RunService processes the input once, then keeps the run open for review:
// tracks can be excluded over HTTP or the MQTT exclude topic, and every
// exclusion rewrites the outputs and republishes the summary.
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting sptrack service...")

	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.connectMQTT(a.handleExclude); err != nil {
		return err
	}
	defer a.disconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, res, err := a.process(ctx)
	if err != nil {
		return err
	}
	if err := a.writeOutputs(ctx, engine, res); err != nil {
		return err
	}

	session := spt.NewSession(engine)
	session.OnChange(func(res *spt.Result) {
		a.printStatus(res)
		msgs, err := session.WriteOutputs()
		if err != nil {
			log.Printf("Error rewriting outputs: %v", err)
		}
		for _, msg := range msgs {
			a.printf("%s\n", msg)
		}
		if a.Publisher != nil {
			if err := a.Publisher.PublishResult(res); err != nil {
				log.Printf("Error publishing result: %v", err)
			}
		}
	})
	a.session.Store(session)

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", a.Opts.HttpPort),
		Handler: newHTTPServer(session),
	}
	go func() {
		log.Printf("[HTTP] Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[HTTP] Server error: %v", err)
			stop()
		}
	}()

	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")
	if a.MQTTClient != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintf(a.Out, "  Exclude commands: %s\n", a.MQTTClient.ExcludeTopic())
		fmt.Fprintf(a.Out, "  Publishing to: %s/{status,progress,summary}\n", a.Publisher.Prefix())
	}
	fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.Opts.HttpPort)
	fmt.Fprintln(a.Out, "  GET  /health             - Health check")
	fmt.Fprintln(a.Out, "  GET  /summary            - Run summary and fit")
	fmt.Fprintln(a.Out, "  GET  /tracks             - Retained track ids")
	fmt.Fprintln(a.Out, "  GET  /tracks/{id}        - One track")
	fmt.Fprintln(a.Out, "  GET  /tracks/{id}/plot.png - Quiver plot of one track")
	fmt.Fprintln(a.Out, "  POST /exclude            - Exclude tracks")
	fmt.Fprintln(a.Out, "  GET  /aggregated.csv     - Aggregated records")
	fmt.Fprintln(a.Out, "  GET  /msd.csv            - MSD table")
	fmt.Fprintln(a.Out, "  GET  /msd.png            - Averaged MSD plot")
	fmt.Fprintln(a.Out, "  GET  /region.{csv,png,geojson}?polygon=x1,y1;x2,y2;... or ?v=x,y&v=... - Region extraction")
	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if err := server.Close(); err != nil {
		log.Printf("[HTTP] close: %v", err)
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// handleExclude applies an MQTT exclude command to the running session.
// Commands arriving before the first run completes are dropped.
func (a *App) handleExclude(ids []int) {
	session := a.session.Load()
	if session == nil {
		log.Printf("Ignoring exclude %v: no run loaded yet", ids)
		return
	}
	if removed := session.Exclude(ids...); len(removed) == 0 {
		log.Printf("Exclude %v matched no retained track", ids)
	}
}
