// Package ingest reads TINSA export files whose encoding and delimiter vary
// between extracts.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"tinsa/importer/internal/locale"
	"tinsa/importer/internal/models"
)

// ErrUnreadable is returned when no encoding and delimiter combination yields
// a usable table.
var ErrUnreadable = errors.New("no encoding/delimiter combination could read the file")

// DefaultMinColumns is the column count a parse must exceed to be accepted.
// A wrong delimiter collapses each line into one or two columns.
const DefaultMinColumns = 5

type encoding struct {
	name   string
	decode func([]byte) ([]byte, error)
}

var encodings = []encoding{
	{name: "utf-8", decode: decodeUTF8},
	{name: "latin-1", decode: charmap.ISO8859_1.NewDecoder().Bytes},
	{name: "cp1252", decode: charmap.Windows1252.NewDecoder().Bytes},
}

var delimiters = []rune{'\t', ',', ';'}

var utf8BOM = []byte("\ufeff")

// Table is a decoded export file.
type Table struct {
	Path      string
	Encoding  string
	Delimiter rune
	Headers   []string
	// Canonical field name to the header it was read from
	Columns map[string]string
	// First present value of each header column, "" when the column is empty
	Samples []string
	Records []models.RawRecord
}

// DelimiterName returns a printable name for the detected delimiter.
func (t *Table) DelimiterName() string {
	if t.Delimiter == '\t' {
		return "TAB"
	}
	return string(t.Delimiter)
}

// Reader sniffs and parses export files.
type Reader struct {
	MinColumns int
}

func NewReader(minColumns int) *Reader {
	return &Reader{MinColumns: minColumns}
}

// ReadFile reads at most limit data rows from path (all rows when limit is 0).
func (r *Reader) ReadFile(path string, limit int) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t, err := r.Read(data, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Read tries every encoding against every delimiter, in order, and keeps the
// first combination that decodes, parses, and has more than MinColumns
// header columns.
func (r *Reader) Read(data []byte, limit int) (*Table, error) {
	for _, enc := range encodings {
		text, err := enc.decode(data)
		if err != nil {
			continue
		}
		text = bytes.TrimPrefix(text, utf8BOM)

		for _, delim := range delimiters {
			headers, rows, err := parse(text, delim, limit)
			if err != nil || len(headers) <= r.MinColumns {
				continue
			}

			bindings, matched := resolveColumns(headers)
			return &Table{
				Encoding:  enc.name,
				Delimiter: delim,
				Headers:   headers,
				Columns:   matched,
				Samples:   samples(len(headers), rows),
				Records:   toRecords(rows, bindings),
			}, nil
		}
	}
	return nil, ErrUnreadable
}

func decodeUTF8(b []byte) ([]byte, error) {
	if !utf8.Valid(b) {
		return nil, errors.New("invalid utf-8")
	}
	return b, nil
}

// parse reads the header row plus up to limit data rows. A row with more
// fields than the header means the delimiter guess is wrong.
type row struct {
	line   int
	fields []string
}

func parse(text []byte, delim rune, limit int) ([]string, []row, error) {
	cr := csv.NewReader(bytes.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err != nil {
		return nil, nil, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var rows []row
	for limit <= 0 || len(rows) < limit {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(fields) > len(headers) {
			return nil, nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(fields), len(headers))
		}
		if isBlank(fields) {
			continue
		}
		rows = append(rows, row{line: line, fields: fields})
	}
	return headers, rows, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func samples(width int, rows []row) []string {
	out := make([]string, width)
	for i := range out {
		for _, r := range rows {
			if i < len(r.fields) && !locale.IsAbsent(r.fields[i]) {
				out[i] = strings.TrimSpace(r.fields[i])
				break
			}
		}
	}
	return out
}

func toRecords(rows []row, bindings []binding) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.RawRecord{Line: r.line}
		for _, b := range bindings {
			if b.index < len(r.fields) {
				b.set(&rec, strings.TrimSpace(r.fields[b.index]))
			}
		}
		records = append(records, rec)
	}
	return records
}
