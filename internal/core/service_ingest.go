package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxHeaderSearchRows is the number of leading rows scanned for the
// header. Spreadsheet exports often put titles or metadata above it.
var MaxHeaderSearchRows = 20

// ContextCheckInterval is how often (in rows) to check for context
// cancellation during ingestion.
var ContextCheckInterval = 100

// canonicalColumns is the header our own exports produce. Ingest
// accepts them in any order, matched case-insensitively.
var canonicalColumns = []string{"user_id", "timestamp", "glucose_value"}

// Header cells of glucose meter export files (FreeStyle Libre). These
// files carry no user_id column, so the user comes from the request or
// the file name.
const (
	deviceTimeColumn    = "gerätezeitstempel"
	deviceGlucoseColumn = "glukosewert-verlauf mg/dl"
)

// rowLayout records where each field sits in a data row. userIdx is -1
// for device exports, which have no user column.
type rowLayout struct {
	device   bool
	userIdx  int
	timeIdx  int
	valueIdx int
}

// IngestCSV reads measurements from a CSV stream and stores them.
//
// The header may sit anywhere within the first MaxHeaderSearchRows rows.
// All inserts run in a single transaction with a savepoint per row, so
// one bad row is rolled back individually and reported in FailedRows
// while the rest of the file still commits. Blank rows are skipped and
// not counted.
func (s *Service) IngestCSV(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()

	result := &IngestResult{
		IngestID:   uuid.New().String(),
		FileName:   opts.FileName,
		FailedRows: []FailedRow{},
	}

	reader := csv.NewReader(WrapReader(opts.Reader))
	reader.FieldsPerRecord = -1 // ragged rows are handled per field
	reader.LazyQuotes = true

	layout, err := findHeader(reader)
	if err != nil {
		return nil, err
	}
	fallbackUser := deviceUserID(opts)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Safe to call after commit

	for rowNum := 1; ; rowNum++ {
		if rowNum%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.TotalRows++
				result.FailedRows = append(result.FailedRows, FailedRow{
					FileName:   opts.FileName,
					LineNumber: parseErr.Line,
					Reason:     fmt.Sprintf("invalid csv: %v", parseErr.Err),
				})
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}

		if isEmptyRow(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		result.TotalRows++

		nl, err := buildLevel(record, layout, fallbackUser)
		if err != nil {
			result.FailedRows = append(result.FailedRows, FailedRow{
				FileName:   opts.FileName,
				LineNumber: line,
				Reason:     err.Error(),
				Data:       record,
			})
			continue
		}

		savepoint := fmt.Sprintf("sp_%d", rowNum)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if _, err := insertLevel(ctx, tx, nl); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			result.FailedRows = append(result.FailedRows, FailedRow{
				FileName:   opts.FileName,
				LineNumber: line,
				Reason:     FormatUserError(err),
				Data:       record,
			})
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		result.Inserted++
	}

	result.Duration = time.Since(start)
	s.recordIngestRun(ctx, tx, result)

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return result, nil
}

// findHeader scans the leading rows for a recognizable header and
// returns the layout of the data rows that follow. Rows that fail to
// parse during the scan are skipped; the header may sit below them.
func findHeader(reader *csv.Reader) (rowLayout, error) {
	for i := 0; i < MaxHeaderSearchRows; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			if i == 0 {
				return rowLayout{}, fmt.Errorf("empty file")
			}
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return rowLayout{}, fmt.Errorf("invalid csv: %w", err)
		}
		if layout, ok := detectHeader(record); ok {
			return layout, nil
		}
	}
	return rowLayout{}, fmt.Errorf("header not found (expected columns: %s)", strings.Join(canonicalColumns, ", "))
}

// detectHeader reports whether a row is a header we understand.
// The canonical header wins over the device format if a file somehow
// contains both.
func detectHeader(record []string) (rowLayout, bool) {
	idx := MakeHeaderIndex(record)

	userIdx, hasUser := idx[canonicalColumns[0]]
	timeIdx, hasTime := idx[canonicalColumns[1]]
	valueIdx, hasValue := idx[canonicalColumns[2]]
	if hasUser && hasTime && hasValue {
		return rowLayout{userIdx: userIdx, timeIdx: timeIdx, valueIdx: valueIdx}, true
	}

	timeIdx, hasTime = idx[deviceTimeColumn]
	valueIdx, hasValue = idx[deviceGlucoseColumn]
	if hasTime && hasValue {
		return rowLayout{device: true, userIdx: -1, timeIdx: timeIdx, valueIdx: valueIdx}, true
	}

	return rowLayout{}, false
}

// deviceUserID resolves the user id for files without a user_id column:
// the explicit override if given, otherwise the file name without its
// extension ("marie.csv" -> "marie").
func deviceUserID(opts IngestOptions) string {
	if opts.UserID != "" {
		return opts.UserID
	}
	base := filepath.Base(opts.FileName)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildLevel converts a data row into a measurement, validating each
// cell. The returned error text names the bad cell and goes verbatim
// into the failed-row report.
func buildLevel(record []string, layout rowLayout, fallbackUser string) (NewLevel, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return record[i]
	}

	userID := fallbackUser
	if layout.userIdx >= 0 {
		userID = CleanCell(cell(layout.userIdx))
	}
	if userID == "" {
		return NewLevel{}, fmt.Errorf("required field user_id is missing")
	}

	var (
		ts  time.Time
		err error
	)
	if layout.device {
		ts, err = ParseDeviceTimestamp(cell(layout.timeIdx))
	} else {
		ts, err = ParseTimestamp(cell(layout.timeIdx))
	}
	if err != nil {
		return NewLevel{}, err
	}

	value, err := ParseGlucose(cell(layout.valueIdx))
	if err != nil {
		return NewLevel{}, err
	}

	return NewLevel{UserID: userID, Timestamp: ts, GlucoseValue: value}, nil
}

// isEmptyRow reports whether every cell in the row is blank. Such rows
// come from trailing newlines and spreadsheet padding and are ignored.
func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
