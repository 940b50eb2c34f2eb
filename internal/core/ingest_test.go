package core

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func newTestCSVReader(s string) *csv.Reader {
	r := csv.NewReader(WrapReader(strings.NewReader(s)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

// ============================================================================
// detectHeader Tests
// ============================================================================

func TestDetectHeader(t *testing.T) {
	tests := []struct {
		name       string
		record     []string
		wantOK     bool
		wantLayout rowLayout
	}{
		{
			name:       "canonical header",
			record:     []string{"user_id", "timestamp", "glucose_value"},
			wantOK:     true,
			wantLayout: rowLayout{userIdx: 0, timeIdx: 1, valueIdx: 2},
		},
		{
			name:       "canonical header reordered",
			record:     []string{"glucose_value", "user_id", "timestamp"},
			wantOK:     true,
			wantLayout: rowLayout{userIdx: 1, timeIdx: 2, valueIdx: 0},
		},
		{
			name:       "canonical header upper case",
			record:     []string{"USER_ID", "Timestamp", "GLUCOSE_VALUE"},
			wantOK:     true,
			wantLayout: rowLayout{userIdx: 0, timeIdx: 1, valueIdx: 2},
		},
		{
			name:       "canonical header with extra columns",
			record:     []string{"id", "user_id", "timestamp", "glucose_value", "notes"},
			wantOK:     true,
			wantLayout: rowLayout{userIdx: 1, timeIdx: 2, valueIdx: 3},
		},
		{
			name:       "device export header",
			record:     []string{"Gerätezeitstempel", "Aufzeichnungstyp", "Glukosewert-Verlauf mg/dL"},
			wantOK:     true,
			wantLayout: rowLayout{device: true, userIdx: -1, timeIdx: 0, valueIdx: 2},
		},
		{
			name:   "data row is not a header",
			record: []string{"alice", "2021-02-18T10:57:00Z", "5.5"},
			wantOK: false,
		},
		{
			name:   "partial canonical header",
			record: []string{"user_id", "timestamp"},
			wantOK: false,
		},
		{
			name:   "empty row",
			record: []string{"", "", ""},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, ok := detectHeader(tt.record)
			if ok != tt.wantOK {
				t.Fatalf("detectHeader(%v) ok = %v, want %v", tt.record, ok, tt.wantOK)
			}
			if ok && layout != tt.wantLayout {
				t.Errorf("detectHeader(%v) = %+v, want %+v", tt.record, layout, tt.wantLayout)
			}
		})
	}
}

// ============================================================================
// findHeader Tests
// ============================================================================

func TestFindHeader(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantErr    string
		wantDevice bool
	}{
		{
			name:  "header on first row",
			input: "user_id,timestamp,glucose_value\nalice,2021-02-18T10:57:00Z,5.5\n",
		},
		{
			name: "header after preamble rows",
			input: "Glucose report\n" +
				"Exported,2021-02-19,v2\n" +
				"\n" +
				"user_id,timestamp,glucose_value\n" +
				"alice,2021-02-18T10:57:00Z,5.5\n",
		},
		{
			name:  "header with BOM",
			input: "\ufeffuser_id,timestamp,glucose_value\n",
		},
		{
			name: "device header after metadata row",
			input: "Glukose-Werte,Erstellt am,18-02-2021 10:57 UTC,Erstellt von,marie\n" +
				"Gerät,Seriennummer,Gerätezeitstempel,Aufzeichnungstyp,Glukosewert-Verlauf mg/dL\n",
			wantDevice: true,
		},
		{
			name:    "no header within search window",
			input:   strings.Repeat("just,some,data\n", 30),
			wantErr: "header not found",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: "empty file",
		},
		{
			name:    "blank lines only",
			input:   "\n\n\n",
			wantErr: "empty file",
		},
		{
			name:    "short file without header",
			input:   "a,b\nc,d\n",
			wantErr: "header not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout, err := findHeader(newTestCSVReader(tt.input))

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("findHeader() error = nil, want %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("findHeader() error = %q, want it to contain %q", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("findHeader() unexpected error: %v", err)
			}
			if layout.device != tt.wantDevice {
				t.Errorf("findHeader() device = %v, want %v", layout.device, tt.wantDevice)
			}
		})
	}
}

// ============================================================================
// buildLevel Tests
// ============================================================================

func TestBuildLevel(t *testing.T) {
	canonical := rowLayout{userIdx: 0, timeIdx: 1, valueIdx: 2}
	device := rowLayout{device: true, userIdx: -1, timeIdx: 2, valueIdx: 4}

	tests := []struct {
		name         string
		record       []string
		layout       rowLayout
		fallbackUser string
		wantErr      string
		want         NewLevel
	}{
		{
			name:   "canonical row",
			record: []string{"alice", "2021-02-18T10:57:00Z", "5.5"},
			layout: canonical,
			want: NewLevel{
				UserID:       "alice",
				Timestamp:    time.Date(2021, 2, 18, 10, 57, 0, 0, time.UTC),
				GlucoseValue: 5.5,
			},
		},
		{
			name:   "canonical row with messy cells",
			record: []string{`  "bob"  `, " 2021-02-18 10:57:00 ", " 7,8 "},
			layout: canonical,
			want: NewLevel{
				UserID:       "bob",
				Timestamp:    time.Date(2021, 2, 18, 10, 57, 0, 0, time.UTC),
				GlucoseValue: 7.8,
			},
		},
		{
			name:         "canonical row ignores fallback user",
			record:       []string{"alice", "2021-02-18T10:57:00Z", "5.5"},
			layout:       canonical,
			fallbackUser: "marie",
			want: NewLevel{
				UserID:       "alice",
				Timestamp:    time.Date(2021, 2, 18, 10, 57, 0, 0, time.UTC),
				GlucoseValue: 5.5,
			},
		},
		{
			name:    "missing user id",
			record:  []string{"", "2021-02-18T10:57:00Z", "5.5"},
			layout:  canonical,
			wantErr: "user_id",
		},
		{
			name:    "bad timestamp",
			record:  []string{"alice", "sometime", "5.5"},
			layout:  canonical,
			wantErr: "invalid timestamp",
		},
		{
			name:    "bad glucose value",
			record:  []string{"alice", "2021-02-18T10:57:00Z", "high"},
			layout:  canonical,
			wantErr: "invalid glucose value",
		},
		{
			name:    "short record",
			record:  []string{"alice"},
			layout:  canonical,
			wantErr: "invalid timestamp",
		},
		{
			name:         "device row uses fallback user",
			record:       []string{"FreeStyle", "ABC-123", "18-02-2021 10:57", "0", "121"},
			layout:       device,
			fallbackUser: "marie",
			want: NewLevel{
				UserID:       "marie",
				Timestamp:    time.Date(2021, 2, 18, 10, 57, 0, 0, time.UTC),
				GlucoseValue: 121,
			},
		},
		{
			name:         "device row without history value",
			record:       []string{"FreeStyle", "ABC-123", "18-02-2021 10:57", "1", ""},
			layout:       device,
			fallbackUser: "marie",
			wantErr:      "invalid glucose value",
		},
		{
			name:    "device row without any user",
			record:  []string{"FreeStyle", "ABC-123", "18-02-2021 10:57", "0", "121"},
			layout:  device,
			wantErr: "user_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildLevel(tt.record, tt.layout, tt.fallbackUser)

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("buildLevel(%v) error = nil, want %q", tt.record, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("buildLevel(%v) error = %q, want it to contain %q", tt.record, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("buildLevel(%v) unexpected error: %v", tt.record, err)
			}
			if got.UserID != tt.want.UserID {
				t.Errorf("UserID = %q, want %q", got.UserID, tt.want.UserID)
			}
			if !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.want.Timestamp)
			}
			if got.GlucoseValue != tt.want.GlucoseValue {
				t.Errorf("GlucoseValue = %v, want %v", got.GlucoseValue, tt.want.GlucoseValue)
			}
		})
	}
}

// ============================================================================
// deviceUserID Tests
// ============================================================================

func TestDeviceUserID(t *testing.T) {
	tests := []struct {
		name string
		opts IngestOptions
		want string
	}{
		{
			name: "explicit user wins",
			opts: IngestOptions{FileName: "marie.csv", UserID: "alice"},
			want: "alice",
		},
		{
			name: "file name stem",
			opts: IngestOptions{FileName: "marie.csv"},
			want: "marie",
		},
		{
			name: "nested path uses base name",
			opts: IngestOptions{FileName: "exports/2021/marie.csv"},
			want: "marie",
		},
		{
			name: "no extension",
			opts: IngestOptions{FileName: "marie"},
			want: "marie",
		},
		{
			name: "empty file name",
			opts: IngestOptions{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deviceUserID(tt.opts); got != tt.want {
				t.Errorf("deviceUserID(%+v) = %q, want %q", tt.opts, got, tt.want)
			}
		})
	}
}

// ============================================================================
// isEmptyRow Tests
// ============================================================================

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{
			name: "empty slice",
			row:  []string{},
			want: true,
		},
		{
			name: "single empty string",
			row:  []string{""},
			want: true,
		},
		{
			name: "multiple empty strings",
			row:  []string{"", "", ""},
			want: true,
		},
		{
			name: "whitespace only cells",
			row:  []string{"   ", "\t", "  \t  "},
			want: true,
		},
		{
			name: "single non-empty cell",
			row:  []string{"data"},
			want: false,
		},
		{
			name: "non-empty with empties",
			row:  []string{"", "data", ""},
			want: false,
		},
		{
			name: "number zero is data",
			row:  []string{"0"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isEmptyRow(tt.row)
			if got != tt.want {
				t.Errorf("isEmptyRow(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

// ============================================================================
// ingestStatus Tests
// ============================================================================

func TestIngestStatus(t *testing.T) {
	tests := []struct {
		name   string
		result IngestResult
		want   string
	}{
		{
			name:   "all rows inserted",
			result: IngestResult{TotalRows: 10, Inserted: 10},
			want:   IngestStatusCompleted,
		},
		{
			name: "partial failure still completed",
			result: IngestResult{
				TotalRows:  10,
				Inserted:   7,
				FailedRows: make([]FailedRow, 3),
			},
			want: IngestStatusCompleted,
		},
		{
			name: "every row failed",
			result: IngestResult{
				TotalRows:  4,
				Inserted:   0,
				FailedRows: make([]FailedRow, 4),
			},
			want: IngestStatusFailed,
		},
		{
			name:   "no data rows at all",
			result: IngestResult{},
			want:   IngestStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ingestStatus(&tt.result); got != tt.want {
				t.Errorf("ingestStatus(%+v) = %q, want %q", tt.result, got, tt.want)
			}
		})
	}
}
