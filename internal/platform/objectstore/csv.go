package objectstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrColumnMissing is returned when the header lacks the requested column.
var ErrColumnMissing = errors.New("column missing")

// ColumnMax scans a CSV with a header row and returns the largest numeric value
// in column. Blank and non-numeric cells are skipped; ok is false when no cell
// parsed.
func ColumnMax(r io.Reader, column string) (best float64, ok bool, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, false, fmt.Errorf("%w: %s", ErrColumnMissing, column)
		}
		return 0, false, fmt.Errorf("read header: %w", err)
	}
	idx := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false, fmt.Errorf("%w: %s", ErrColumnMissing, column)
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("read row: %w", err)
		}
		if idx >= len(record) {
			continue
		}
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
		if parseErr != nil || math.IsNaN(value) {
			continue
		}
		if !ok || value > best {
			best = value
			ok = true
		}
	}
	return best, ok, nil
}
