package spt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeFormat(t *testing.T) {
	tests := []struct {
		name      string
		head      string
		wantDelim rune
		wantHdr   bool
		wantCols  ColumnMap
	}{
		{
			name:      "comma with header",
			head:      "TRACK NUMBER,frame number,x,y,intensity\n1,0,1.5,2.5,100\n",
			wantDelim: ',',
			wantHdr:   true,
			wantCols:  ColumnMap{Track: 0, Frame: 1, X: 2, Y: 3, Intensity: 4},
		},
		{
			name:      "semicolon with reordered header",
			head:      "x;y;Intensity;Frame;Track\n1;2;3;4;5\n",
			wantDelim: ';',
			wantHdr:   true,
			wantCols:  ColumnMap{Track: 4, Frame: 3, X: 0, Y: 1, Intensity: 2},
		},
		{
			name:      "tab with extra columns",
			head:      "track\tframe\tx\ty\tz\tintensity\n1\t1\t1\t1\t0\t9\n",
			wantDelim: '\t',
			wantHdr:   true,
			wantCols:  ColumnMap{Track: 0, Frame: 1, X: 2, Y: 3, Intensity: 5},
		},
		{
			name:      "pipe headerless",
			head:      "1|1|2.5|3.5|0|10\n1|2|2.6|3.4|0|11\n",
			wantDelim: '|',
			wantHdr:   false,
			wantCols:  PositionalColumns,
		},
		{
			name:      "whitespace headerless",
			head:      "1  1  2.5  3.5  0  10\n1  2  2.6  3.4  0  11\n",
			wantDelim: 0,
			wantHdr:   false,
			wantCols:  PositionalColumns,
		},
		{
			name:      "bom and crlf",
			head:      "\xef\xbb\xbftrack,frame,x,y,intensity\r\n1,0,0,0,1\r\n",
			wantDelim: ',',
			wantHdr:   true,
			wantCols:  ColumnMap{Track: 0, Frame: 1, X: 2, Y: 3, Intensity: 4},
		},
		{
			name:      "quoted header",
			head:      "\"track\",\"frame\",\"x\",\"y\",\"intensity\"\n1,0,0,0,1\n",
			wantDelim: ',',
			wantHdr:   true,
			wantCols:  ColumnMap{Track: 0, Frame: 1, X: 2, Y: 3, Intensity: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ProbeFormat([]byte(tt.head))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelim, f.Delimiter)
			assert.Equal(t, tt.wantHdr, f.HasHeader)
			assert.Equal(t, tt.wantCols, f.Columns)
		})
	}
}

func TestProbeFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		head    string
		wantErr error
	}{
		{"empty", "", ErrEmptySource},
		{"blank lines", "\n\n  \n", ErrEmptySource},
		{"too few fields", "a,b,c\n1,2,3\n", ErrNoDelimiter},
		{"inconsistent rows", "track,frame,x,y,intensity\n1,2,3\n", ErrNoDelimiter},
		{"missing columns", "track,frame,x,y,brightness\n1,0,0,0,1\n", ErrMissingColumns},
		{"headerless too narrow", "1,2,3,4,5\n1,2,3,4,5\n", ErrHeaderlessInvalid},
		{"headerless non-positive", "1,0,3,4,0,6\n1,1,3,4,0,6\n", ErrHeaderlessInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProbeFormat([]byte(tt.head))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsFormatError(err))
		})
	}
}

func TestProbeFormat_MissingColumnsReported(t *testing.T) {
	_, err := ProbeFormat([]byte("track,x,y,a,b\n1,0,0,0,1\n"))
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{"frame number", "intensity"}, fe.Missing)
	assert.Equal(t, ExpectedColumns(), fe.Expected)
	assert.Contains(t, err.Error(), "missing [frame number, intensity]")
}

func TestProbeFormat_OnlyFirstKilobyte(t *testing.T) {
	var b strings.Builder
	b.WriteString("track,frame,x,y,intensity\n")
	for b.Len() < probeSize+200 {
		b.WriteString("1,2,3.25,4.5,100\n")
	}
	// a broken line past the probe window does not affect the verdict
	b.WriteString("garbage\n")

	f, err := ProbeFormat([]byte(b.String()))
	require.NoError(t, err)
	assert.Equal(t, ',', f.Delimiter)
	assert.True(t, f.HasHeader)
}

func TestSampleLines_TruncatedTail(t *testing.T) {
	lines := sampleLines([]byte("a,b\n1,2\n3,"), 5, true)
	assert.Equal(t, []string{"a,b", "1,2"}, lines)

	lines = sampleLines([]byte("a,b\n1,2\n3,"), 5, false)
	assert.Equal(t, []string{"a,b", "1,2", "3,"}, lines)

	lines = sampleLines([]byte("only-line-no-newline"), 2, true)
	assert.Equal(t, []string{"only-line-no-newline"}, lines)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "delimiter=',' header=true", Format{Delimiter: ',', HasHeader: true}.String())
	assert.Equal(t, "delimiter=whitespace header=false", Format{}.String())
}
