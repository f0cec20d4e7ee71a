// Package rows classifies raw spreadsheet rows into renderable entries and
// rows that still need geocoding.
package rows

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/model"
)

// Expected column names, exact and case-sensitive. Missing columns are read
// as empty strings.
const (
	colName        = "Name"
	colLatitude    = "Latitude"
	colLongitude   = "Longitude"
	colAddress     = "Address"
	colDescription = "Description"
	colLinkURL     = "LinkURL"
	colLinkText    = "LinkText"
)

// Result holds the two classified row sequences, each preserving source
// order, plus a count of rows dropped for lacking usable data.
type Result struct {
	Located []model.LocationEntry
	Pending []model.PendingRow
	Dropped int
}

// ParseReader decodes delimited text with a header row and classifies every
// data row. Decoder-level parse errors on individual rows are logged and
// skipped; only an unreadable header or a non-CSV failure aborts.
func ParseReader(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("rows: csv is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "rows: read header")
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(col)] = i
	}
	if _, ok := colIdx[colName]; !ok {
		return nil, eris.Errorf("rows: missing required column %q", colName)
	}

	res := &Result{}
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Malformed rows are tolerated; the row is unusable but the
			// rest of the sheet still parses.
			zap.L().Warn("rows: skipping malformed row",
				zap.Int("line", parseErr.Line),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return nil, eris.Wrap(err, "rows: read row")
		}
		rowNum++

		classify(res, record, colIdx, rowNum)
	}

	return res, nil
}

// classify applies the per-row rules: name required; finite coordinates win;
// otherwise a non-empty address defers the row to geocoding; otherwise drop.
func classify(res *Result, record []string, colIdx map[string]int, rowNum int) {
	name := strings.TrimSpace(getCol(record, colIdx, colName))
	if name == "" {
		zap.L().Warn("rows: dropping row without a name", zap.Int("row", rowNum))
		res.Dropped++
		return
	}

	description := strings.TrimSpace(getCol(record, colIdx, colDescription))
	linkURL := strings.TrimSpace(getCol(record, colIdx, colLinkURL))
	linkText := strings.TrimSpace(getCol(record, colIdx, colLinkText))

	lat, latOK := parseFinite(getCol(record, colIdx, colLatitude))
	lng, lngOK := parseFinite(getCol(record, colIdx, colLongitude))
	if latOK && lngOK {
		entry, err := model.NewLocationEntry(name, lat, lng, description, linkURL, linkText)
		if err != nil {
			zap.L().Warn("rows: dropping row", zap.Int("row", rowNum), zap.Error(err))
			res.Dropped++
			return
		}
		res.Located = append(res.Located, entry)
		return
	}

	address := strings.TrimSpace(getCol(record, colIdx, colAddress))
	if address != "" {
		res.Pending = append(res.Pending, model.PendingRow{
			Name:        name,
			Address:     address,
			Description: description,
			LinkURL:     linkURL,
			LinkText:    linkText,
		})
		return
	}

	zap.L().Warn("rows: dropping row with no usable location data",
		zap.Int("row", rowNum),
		zap.String("name", name),
	)
	res.Dropped++
}

// parseFinite parses a coordinate cell, rejecting empty, non-numeric, NaN
// and infinite values.
func parseFinite(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !model.IsFinite(f) {
		return 0, false
	}
	return f, true
}

// getCol returns the value at the named column, or "" when the column is
// absent from the header or the row is short.
func getCol(record []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
