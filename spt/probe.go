package spt

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// probeSize is how much of the source the format probe inspects
const probeSize = 1024

// minFields is the smallest field count a candidate delimiter must produce
const minFields = 5

// Input column names, matched case-insensitively. The first name of each entry
// is the canonical one reported in errors.
var inputColumns = []struct {
	names []string
}{
	{[]string{"TRACK NUMBER", "track"}},
	{[]string{"frame number", "frame"}},
	{[]string{"x"}},
	{[]string{"y"}},
	{[]string{"intensity"}},
}

var utf8BOM = []byte("\xef\xbb\xbf")

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// ExpectedColumns returns the canonical input column names
func ExpectedColumns() []string {
	cols := make([]string, len(inputColumns))
	for i, c := range inputColumns {
		cols[i] = c.names[0]
	}
	return cols
}

// ColumnMap holds the field index of each required input column
type ColumnMap struct {
	Track     int
	Frame     int
	X         int
	Y         int
	Intensity int
}

// PositionalColumns is the layout of header-less input. Column 4 is reserved.
var PositionalColumns = ColumnMap{Track: 0, Frame: 1, X: 2, Y: 3, Intensity: 5}

func (m ColumnMap) indexes() []int {
	return []int{m.Track, m.Frame, m.X, m.Y, m.Intensity}
}

func (m ColumnMap) maxIndex() int {
	max := 0
	for _, i := range m.indexes() {
		if i > max {
			max = i
		}
	}
	return max
}

// Format is the result of probing an input source
type Format struct {
	// Delimiter is the field separator. Zero means runs of whitespace.
	Delimiter rune
	HasHeader bool
	Columns   ColumnMap
}

// Whitespace reports whether fields are separated by runs of whitespace
func (f Format) Whitespace() bool {
	return f.Delimiter == 0
}

func (f Format) String() string {
	delim := "whitespace"
	if !f.Whitespace() {
		delim = strconv.QuoteRune(f.Delimiter)
	}
	return fmt.Sprintf("delimiter=%s header=%t", delim, f.HasHeader)
}

func (f Format) split(line string) []string {
	if f.Whitespace() {
		return strings.Fields(line)
	}
	fields := strings.Split(line, string(f.Delimiter))
	for i := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(fields[i]), `"`)
	}
	return fields
}

// ProbeFormat inspects the head of a source and decides its delimiter and
// whether the first line is a header. Only the first kilobyte is examined.
func ProbeFormat(head []byte) (Format, error) {
	truncated := len(head) > probeSize
	if truncated {
		head = head[:probeSize]
	}
	lines := sampleLines(head, 2, truncated)
	if len(lines) == 0 {
		return Format{}, &FormatError{Reason: "no data in input", Err: ErrEmptySource}
	}

	format, ok := detectDelimiter(lines)
	if !ok {
		return Format{}, &FormatError{
			Line:     1,
			Reason:   "no delimiter splits the first lines into at least 5 consistent fields",
			Expected: ExpectedColumns(),
			Err:      ErrNoDelimiter,
		}
	}

	first := format.split(lines[0])
	for _, idx := range PositionalColumns.indexes() {
		if idx >= len(first) {
			continue
		}
		if _, err := strconv.ParseFloat(first[idx], 64); err != nil {
			format.HasHeader = true
			break
		}
	}

	if format.HasHeader {
		cols, err := resolveHeader(first)
		if err != nil {
			return Format{}, err
		}
		format.Columns = cols
		return format, nil
	}

	if err := checkPositional(first); err != nil {
		return Format{}, err
	}
	format.Columns = PositionalColumns
	return format, nil
}

// sampleLines returns up to n non-blank lines. When the head was cut short the
// trailing partial line is ignored unless it is the only one.
func sampleLines(head []byte, n int, truncated bool) []string {
	head = bytes.TrimPrefix(head, utf8BOM)
	raw := strings.Split(string(head), "\n")
	var lines []string
	for i, l := range raw {
		if truncated && i == len(raw)-1 && i > 0 {
			break
		}
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == n {
			break
		}
	}
	return lines
}

func detectDelimiter(lines []string) (Format, bool) {
	for _, cand := range delimiterCandidates {
		if !strings.ContainsRune(lines[0], cand) {
			continue
		}
		f := Format{Delimiter: cand}
		if consistentFields(f, lines) {
			return f, true
		}
	}
	f := Format{}
	if consistentFields(f, lines) {
		return f, true
	}
	return Format{}, false
}

func consistentFields(f Format, lines []string) bool {
	n := len(f.split(lines[0]))
	if n < minFields {
		return false
	}
	for _, l := range lines[1:] {
		if len(f.split(l)) != n {
			return false
		}
	}
	return true
}

func resolveHeader(header []string) (ColumnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	found := make([]int, len(inputColumns))
	var missing []string
	for i, col := range inputColumns {
		found[i] = -1
		for _, name := range col.names {
			if idx, ok := index[strings.ToLower(name)]; ok {
				found[i] = idx
				break
			}
		}
		if found[i] < 0 {
			missing = append(missing, col.names[0])
		}
	}
	if len(missing) > 0 {
		return ColumnMap{}, &FormatError{
			Line:     1,
			Reason:   "input header lacks required columns",
			Expected: ExpectedColumns(),
			Missing:  missing,
			Err:      ErrMissingColumns,
		}
	}

	return ColumnMap{
		Track:     found[0],
		Frame:     found[1],
		X:         found[2],
		Y:         found[3],
		Intensity: found[4],
	}, nil
}

func checkPositional(first []string) error {
	if len(first) <= PositionalColumns.maxIndex() {
		return &FormatError{
			Line:     1,
			Reason:   fmt.Sprintf("header-less row has %d fields, need %d", len(first), PositionalColumns.maxIndex()+1),
			Expected: ExpectedColumns(),
			Err:      ErrHeaderlessInvalid,
		}
	}
	for i, idx := range PositionalColumns.indexes() {
		v, err := strconv.ParseFloat(first[idx], 64)
		if err != nil || !(v > 0) {
			return &FormatError{
				Line:     1,
				Reason:   fmt.Sprintf("header-less column %d (%s) is not a positive number: %q", idx, inputColumns[i].names[0], first[idx]),
				Expected: ExpectedColumns(),
				Err:      ErrHeaderlessInvalid,
			}
		}
	}
	return nil
}
