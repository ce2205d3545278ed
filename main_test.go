package main

import (
	"bytes"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunCheckHeaders() error       { m.called["RunCheckHeaders"] = true; return nil }
func (m *mockApp) RunProcess() error            { m.called["RunProcess"] = true; return nil }
func (m *mockApp) RunRegion() error             { m.called["RunRegion"] = true; return nil }
func (m *mockApp) RunService() error            { m.called["RunService"] = true; return nil }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Process",
			args:           []string{"--input", "tracks.csv", "--precision", "2", "--max-length", "50"},
			expectedCalled: "RunProcess",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Input != "tracks.csv" {
					t.Errorf("expected Input tracks.csv, got %s", opts.Input)
				}
				if opts.Precision != 2 {
					t.Errorf("expected Precision 2, got %d", opts.Precision)
				}
				if opts.MaxLength != 50 {
					t.Errorf("expected MaxLength 50, got %f", opts.MaxLength)
				}
				if !opts.Set["precision"] || !opts.Set["max-length"] {
					t.Errorf("expected precision and max-length marked as set, got %v", opts.Set)
				}
				if opts.Set["min-points"] {
					t.Error("min-points should not be marked as set")
				}
			},
		},
		{
			name:           "PositionalInput",
			args:           []string{"--frame-rate", "20", "tracks.csv"},
			expectedCalled: "RunProcess",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Input != "tracks.csv" {
					t.Errorf("expected Input tracks.csv, got %s", opts.Input)
				}
				if opts.FrameRate != 20 {
					t.Errorf("expected FrameRate 20, got %f", opts.FrameRate)
				}
			},
		},
		{
			name:           "FromAggregated",
			args:           []string{"--from-aggregated", "out/aggregated.csv", "--exclude", "3,7"},
			expectedCalled: "RunProcess",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.FromAggregated != "out/aggregated.csv" {
					t.Errorf("expected FromAggregated out/aggregated.csv, got %s", opts.FromAggregated)
				}
				if opts.Exclude != "3,7" {
					t.Errorf("expected Exclude 3,7, got %s", opts.Exclude)
				}
			},
		},
		{
			name:           "CheckHeaders",
			args:           []string{"--check-headers", "--input", "tracks.csv"},
			expectedCalled: "RunCheckHeaders",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.CheckHeaders {
					t.Error("expected CheckHeaders true")
				}
			},
		},
		{
			name:           "Region",
			args:           []string{"--from-aggregated", "a.csv", "--polygon", "0,0;1,0;1,1", "--region-name", "nucleus"},
			expectedCalled: "RunRegion",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Polygon != "0,0;1,0;1,1" {
					t.Errorf("expected Polygon 0,0;1,0;1,1, got %s", opts.Polygon)
				}
				if opts.RegionName != "nucleus" {
					t.Errorf("expected RegionName nucleus, got %s", opts.RegionName)
				}
			},
		},
		{
			name:           "RegionFile",
			args:           []string{"--input", "t.csv", "--polygon-file", "cell.geojson"},
			expectedCalled: "RunRegion",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.PolygonFile != "cell.geojson" {
					t.Errorf("expected PolygonFile cell.geojson, got %s", opts.PolygonFile)
				}
				if opts.RegionName != "region" {
					t.Errorf("expected default RegionName region, got %s", opts.RegionName)
				}
			},
		},
		{
			name:           "Serve",
			args:           []string{"--serve", "--input", "t.csv", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.Serve {
					t.Error("expected Serve true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "Outputs",
			args:           []string{"--input", "t.csv", "--output-dir", "out", "--plots", "1-5", "--workbook", "msd.xlsx", "--msd-plot", "msd.png"},
			expectedCalled: "RunProcess",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.OutputDir != "out" {
					t.Errorf("expected OutputDir out, got %s", opts.OutputDir)
				}
				if opts.Plots != "1-5" {
					t.Errorf("expected Plots 1-5, got %s", opts.Plots)
				}
				if opts.Workbook != "msd.xlsx" {
					t.Errorf("expected Workbook msd.xlsx, got %s", opts.Workbook)
				}
				if opts.MSDPlot != "msd.png" {
					t.Errorf("expected MSDPlot msd.png, got %s", opts.MSDPlot)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called, got %v", tt.expectedCalled, app.called)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !strings.Contains(out.String(), "Usage of sptrack") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	if err := run([]string{"--precision", "three"}, &out, app); err == nil {
		t.Error("expected error for non-numeric precision")
	}
	if len(app.called) != 0 {
		t.Errorf("no mode should run on a flag error, got %v", app.called)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "sptrack version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "No input given.") {
		t.Errorf("expected usage hints, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("expected no mode to run, got %v", app.called)
	}
}

func TestMain_Execute(t *testing.T) {
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
