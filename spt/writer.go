package spt

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AggregatedHeader is the column layout of the aggregated CSV
var AggregatedHeader = []string{
	"Track", "Frame", "x", "y", "roundx", "roundy",
	"dx", "dy", "rho", "theta", "intensity", "framecount",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func aggregatedRow(rec DisplacementRecord, precision int) []string {
	return []string{
		strconv.Itoa(rec.TrackID),
		formatFloat(rec.Frame),
		formatFloat(rec.X),
		formatFloat(rec.Y),
		formatFloat(RoundTo(rec.X, precision)),
		formatFloat(RoundTo(rec.Y, precision)),
		formatFloat(rec.DX),
		formatFloat(rec.DY),
		formatFloat(rec.Rho),
		formatFloat(rec.Theta),
		formatFloat(rec.Intensity),
		strconv.Itoa(rec.FrameCount),
	}
}

// WriteAggregated writes records in the aggregated schema
func WriteAggregated(w io.Writer, records []DisplacementRecord, precision int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AggregatedHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(aggregatedRow(rec, precision)); err != nil {
			return fmt.Errorf("writing row for track %d: %w", rec.TrackID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAggregatedFile writes records to path and returns a status message.
// A file that cannot be created yields a WriteError. Partial output is left in
// place.
func WriteAggregatedFile(path string, records []DisplacementRecord, precision int) (string, error) {
	if err := writeFile(path, func(w io.Writer) error {
		return WriteAggregated(w, records, precision)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d aggregated records to %s", len(records), path), nil
}

// LoadAggregated reads records written by WriteAggregated. The rounded
// columns are ignored.
func LoadAggregated(r io.Reader) ([]DisplacementRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FormatError{Reason: "aggregated file is empty", Err: ErrEmptySource}
		}
		return nil, fmt.Errorf("reading aggregated header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range AggregatedHeader {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &FormatError{
			Line:     1,
			Reason:   "aggregated header lacks required columns",
			Expected: AggregatedHeader,
			Missing:  missing,
			Err:      ErrMissingColumns,
		}
	}

	var records []DisplacementRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return nil, &FormatError{Line: line, Reason: err.Error(), Err: ErrBadValue}
		}
		if blankRow(row) {
			continue
		}
		if len(row) < len(header) {
			return nil, &FormatError{
				Line:   line,
				Reason: fmt.Sprintf("row has %d fields, need %d", len(row), len(header)),
				Err:    ErrBadValue,
			}
		}

		var rec DisplacementRecord
		if rec.TrackID, err = parseIntField(row[index["Track"]], "Track", line); err != nil {
			return nil, err
		}
		if rec.FrameCount, err = parseIntField(row[index["framecount"]], "framecount", line); err != nil {
			return nil, err
		}
		floats := []struct {
			col string
			dst *float64
		}{
			{"Frame", &rec.Frame},
			{"x", &rec.X},
			{"y", &rec.Y},
			{"dx", &rec.DX},
			{"dy", &rec.DY},
			{"rho", &rec.Rho},
			{"theta", &rec.Theta},
			{"intensity", &rec.Intensity},
		}
		for _, f := range floats {
			if *f.dst, err = parseFloatField(row[index[f.col]], f.col, line); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadAggregatedFile reads an aggregated CSV from disk
func LoadAggregatedFile(path string) ([]DisplacementRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening aggregated file: %w", err)
	}
	defer f.Close()

	records, err := LoadAggregated(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	return records, nil
}

// WriteMSD writes the MSD table with one row per lag 1..maxLag and one column
// per track in ascending id order. Lags a track does not have are left empty.
func WriteMSD(w io.Writer, table MSDTable, maxLag int) error {
	if maxLag <= 0 {
		maxLag = DefaultMaxMSDLag
	}
	ids := table.TrackIDs()

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(ids)+1)
	header = append(header, "dT")
	for _, id := range ids {
		header = append(header, fmt.Sprintf("track%d", id))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for lag := 1; lag <= maxLag; lag++ {
		row := make([]string, 0, len(ids)+1)
		row = append(row, strconv.Itoa(lag))
		for _, id := range ids {
			if v, ok := table[id][lag]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing lag %d: %w", lag, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMSDFile writes the MSD table to path and returns a status message
func WriteMSDFile(path string, table MSDTable, maxLag int) (string, error) {
	if err := writeFile(path, func(w io.Writer) error {
		return WriteMSD(w, table, maxLag)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote MSD for %d tracks to %s", len(table), path), nil
}

// WriteRegionFile writes the region's points in the aggregated schema
func WriteRegionFile(path string, region Region, precision int) (string, error) {
	if err := writeFile(path, func(w io.Writer) error {
		return WriteAggregated(w, region.Points, precision)
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Region %s: %d points written to %s", region.Name, region.Count, path), nil
}

// WriteRegionGeoJSON writes the region polygon and its points as a GeoJSON
// feature collection
func WriteRegionGeoJSON(path string, region Region) error {
	return writeFile(path, func(w io.Writer) error {
		data, err := region.FeatureCollection().MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshaling region: %w", err)
		}
		_, err = w.Write(data)
		return err
	})
}

// writeFile creates path and hands it to fn. Failures are reported as a
// WriteError carrying the path.
func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &WriteError{Path: path, Op: "create directory", Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Op: "open", Err: err}
	}
	if err := fn(f); err != nil {
		f.Close()
		return &WriteError{Path: path, Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Op: "close", Err: err}
	}
	return nil
}
