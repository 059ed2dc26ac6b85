// Package importer bulk-loads ledger entries from CSV exports.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	enc "github.com/MrJamesThe3rd/pocketfin/internal/encoding"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

const (
	colType        = "type"
	colAmount      = "amount"
	colDescription = "description"
	colActive      = "active"
)

var ErrNoHeader = errors.New("missing header: expected type and amount columns")

// Row is one parsed entry ready to be added to the ledger.
type Row struct {
	Line        int
	Kind        ledger.Kind
	Description string
	Amount      decimal.Decimal
	Active      bool
}

type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseError collects every bad line of a file.
type ParseError struct {
	Lines []*LineError
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		msgs[i] = l.Error()
	}

	return fmt.Sprintf("%d invalid row(s): %s", len(e.Lines), strings.Join(msgs, "; "))
}

func (e *ParseError) Unwrap() []error {
	errs := make([]error, len(e.Lines))
	for i, l := range e.Lines {
		errs[i] = l
	}

	return errs
}

type Result struct {
	Rows    []Row
	Charset enc.Charset
}

// Parse reads a header-led CSV file separated by ';' or ','.
// Column names are case-insensitive; type and amount are required.
// Blank lines are skipped. Any bad row fails the whole file with a *ParseError.
func Parse(r io.Reader) (*Result, error) {
	utf8r, cs, err := enc.NewUTF8Reader(r)
	if err != nil {
		return nil, fmt.Errorf("detecting encoding: %w", err)
	}

	data, err := io.ReadAll(utf8r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = sniffSeparator(string(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}

		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := indexColumns(header)
	if _, ok := cols[colType]; !ok {
		return nil, ErrNoHeader
	}

	if _, ok := cols[colAmount]; !ok {
		return nil, ErrNoHeader
	}

	res := &Result{Charset: cs}
	perr := &ParseError{}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			var ce *csv.ParseError
			if errors.As(err, &ce) {
				perr.Lines = append(perr.Lines, &LineError{Line: ce.Line, Err: ce.Err})
				continue
			}

			return nil, fmt.Errorf("reading csv: %w", err)
		}

		line, _ := reader.FieldPos(0)

		if blank(record) {
			continue
		}

		row, err := parseRow(cols, record)
		if err != nil {
			perr.Lines = append(perr.Lines, &LineError{Line: line, Err: err})
			continue
		}

		row.Line = line
		res.Rows = append(res.Rows, row)
	}

	if len(perr.Lines) > 0 {
		return nil, perr
	}

	return res, nil
}

func parseRow(cols map[string]int, record []string) (Row, error) {
	kind, err := ledger.ParseKind(strings.ToLower(cell(record, cols, colType)))
	if err != nil {
		return Row{}, err
	}

	amount, err := ledger.ParseAmount(cell(record, cols, colAmount))
	if err != nil {
		return Row{}, err
	}

	active := true

	if s := cell(record, cols, colActive); s != "" {
		active, err = strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			return Row{}, fmt.Errorf("invalid active flag %q", s)
		}
	}

	return Row{
		Kind:        kind,
		Description: cell(record, cols, colDescription),
		Amount:      amount,
		Active:      active,
	}, nil
}

// sniffSeparator picks ';' when the header line has more of them than commas.
// Amounts like "12,50" make ',' ambiguous in data lines, so only the header is inspected.
func sniffSeparator(data string) rune {
	header, _, _ := strings.Cut(data, "\n")

	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}

	return ','
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))

	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := cols[name]; name != "" && !dup {
			cols[name] = i
		}
	}

	return cols
}

func cell(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}

	return strings.TrimSpace(record[idx])
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}
