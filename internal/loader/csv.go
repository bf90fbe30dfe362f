// Package loader parses bulk user files into raw records.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dtroode/audience-server/internal/model"
)

// InterestSeparator splits the interests cell into items.
const InterestSeparator = "|"

var knownColumns = []string{
	"cookie", "email", "phone_number", "created_at",
	"state", "country", "city",
	"age", "gender", "income", "education",
	"interests",
}

// ErrMissingColumn is returned when the header lacks cookie or email.
var ErrMissingColumn = errors.New("missing required column")

// CSVReader reads raw records from a CSV file with a header row.
type CSVReader struct {
	r        *csv.Reader
	source   string
	clientID string
	header   []string
	unknown  []string
	line     int
}

// NewCSVReader reads the header and returns a reader positioned at the first row.
func NewCSVReader(r io.Reader, clientID string) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for _, required := range []string{"cookie", "email"} {
		if !slices.Contains(header, required) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var unknown []string
	for _, h := range header {
		if h != "" && !slices.Contains(knownColumns, h) {
			unknown = append(unknown, h)
		}
	}

	return &CSVReader{
		r:        cr,
		source:   model.SourceFile,
		clientID: clientID,
		header:   header,
		unknown:  unknown,
		line:     1,
	}, nil
}

// UnknownColumns returns header columns that are not part of the user record.
func (c *CSVReader) UnknownColumns() []string {
	return c.unknown
}

// Line returns the line number of the last row read.
func (c *CSVReader) Line() int {
	return c.line
}

// Next returns the next record. It returns io.EOF when the file is exhausted.
func (c *CSVReader) Next() (model.RawRecord, error) {
	row, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.RawRecord{}, io.EOF
		}
		return model.RawRecord{}, fmt.Errorf("failed to read row: %w", err)
	}
	c.line++

	cells := make(map[string]string, len(c.header))
	for i, name := range c.header {
		if name == "" || i >= len(row) {
			continue
		}
		cells[name] = row[i]
	}

	payload, err := json.Marshal(cells)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("failed to encode row %d: %w", c.line, err)
	}

	rec := model.RawRecord{
		Source:      c.source,
		ClientID:    c.clientID,
		Payload:     payload,
		Cookie:      strings.TrimSpace(cells["cookie"]),
		Email:       strings.TrimSpace(cells["email"]),
		PhoneNumber: cell(cells, "phone_number"),
		CreatedAt:   cell(cells, "created_at"),
		State:       cell(cells, "state"),
		Country:     cell(cells, "country"),
		City:        cell(cells, "city"),
		Age:         number(cells, "age"),
		Gender:      cell(cells, "gender"),
		Income:      cell(cells, "income"),
		Education:   cell(cells, "education"),
		Interests:   SplitInterests(cells["interests"]),
	}

	for _, name := range c.unknown {
		if v := cell(cells, name); v != nil {
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			rec.Extra[name] = *v
		}
	}

	return rec, nil
}

// SplitInterests splits a pipe-delimited interests cell. An empty cell is absent.
func SplitInterests(value string) []string {
	if isMissing(value) {
		return nil
	}

	parts := strings.Split(value, InterestSeparator)
	interests := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			interests = append(interests, p)
		}
	}
	return interests
}

func cell(cells map[string]string, name string) *string {
	v, ok := cells[name]
	if !ok || isMissing(v) {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

// number parses a numeric cell. Unparsable values become NaN so normalization drops them with a warning.
func number(cells map[string]string, name string) *float64 {
	v := cell(cells, name)
	if v == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		f = math.NaN()
	}
	return &f
}

func isMissing(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "nan")
}
