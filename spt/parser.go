package spt

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ParseFile reads position records from an instrument export on disk
func ParseFile(path string) ([]PositionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	records, err := ParseRecords(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Path == "" {
			fe.Path = path
		}
		return nil, err
	}
	return records, nil
}

// CheckInputHeaders probes a file and reports the detected format without
// reading the records
func CheckInputHeaders(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()

	head := make([]byte, probeSize+1)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Format{}, fmt.Errorf("reading input: %w", err)
	}

	format, err := ProbeFormat(head[:n])
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return Format{}, err
	}
	return format, nil
}

// ParseRecords probes the source format and returns its records in file order
func ParseRecords(r io.Reader) ([]PositionRecord, error) {
	br := bufio.NewReaderSize(r, 4*probeSize)
	head, err := br.Peek(probeSize + 1)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	format, err := ProbeFormat(head)
	if err != nil {
		return nil, err
	}
	Logf("[parser] detected %s", format)

	if bytes.HasPrefix(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
	}

	if format.Whitespace() {
		return readFields(br, format)
	}
	return readDelimited(br, format)
}

func readDelimited(r io.Reader, format Format) ([]PositionRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = format.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var records []PositionRecord
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, &FormatError{Line: line, Reason: err.Error(), Err: ErrBadValue}
		}
		if first {
			first = false
			if format.HasHeader {
				continue
			}
		}
		if blankRow(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rec, err := parseRow(row, format.Columns, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func readFields(r io.Reader, format Format) ([]PositionRecord, error) {
	scanner := bufio.NewScanner(r)
	var records []PositionRecord
	line := 0
	first := true
	for scanner.Scan() {
		line++
		row := strings.Fields(scanner.Text())
		if len(row) == 0 {
			continue
		}
		if first {
			first = false
			if format.HasHeader {
				continue
			}
		}
		rec, err := parseRow(row, format.Columns, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRow(row []string, cols ColumnMap, line int) (PositionRecord, error) {
	if len(row) <= cols.maxIndex() {
		return PositionRecord{}, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("row has %d fields, need %d", len(row), cols.maxIndex()+1),
			Err:    ErrBadValue,
		}
	}

	var rec PositionRecord
	var err error
	if rec.TrackID, err = parseIntField(row[cols.Track], "track", line); err != nil {
		return rec, err
	}
	if rec.Frame, err = parseIntField(row[cols.Frame], "frame", line); err != nil {
		return rec, err
	}
	if rec.X, err = parseFloatField(row[cols.X], "x", line); err != nil {
		return rec, err
	}
	if rec.Y, err = parseFloatField(row[cols.Y], "y", line); err != nil {
		return rec, err
	}
	if rec.Intensity, err = parseFloatField(row[cols.Intensity], "intensity", line); err != nil {
		return rec, err
	}
	return rec, nil
}

func parseFloatField(s, name string, line int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("column %s: %q is not a number", name, s),
			Err:    ErrBadValue,
		}
	}
	return v, nil
}

// parseIntField accepts integral values written either as "3" or "3.0"
func parseIntField(s, name string, line int) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("column %s: %q is not an integer", name, s),
			Err:    ErrBadValue,
		}
	}
	return int(v), nil
}
