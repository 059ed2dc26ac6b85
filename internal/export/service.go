package export

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

// Header is the column layout written by WriteCSV. importer.Parse reads it back.
var Header = []string{"type", "description", "amount", "active"}

type EntryLister interface {
	List(ctx context.Context, ownerID string, kind ledger.Kind) ([]*ledger.Entry, error)
}

// Service exports an owner's ledger.
type Service struct {
	entries EntryLister
	now     func() time.Time
}

// NewService creates a new export Service.
func NewService(entries EntryLister) *Service {
	return &Service{
		entries: entries,
		now:     time.Now,
	}
}

// Entries returns every entry of the owner, income first.
func (s *Service) Entries(ctx context.Context, ownerID string) ([]*ledger.Entry, error) {
	lists := make([][]*ledger.Entry, len(ledger.Kinds))

	g, gctx := errgroup.WithContext(ctx)

	for i, kind := range ledger.Kinds {
		g.Go(func() error {
			entries, err := s.entries.List(gctx, ownerID, kind)
			if err != nil {
				return fmt.Errorf("listing %s entries: %w", kind, err)
			}

			lists[i] = entries

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*ledger.Entry

	for _, entries := range lists {
		all = append(all, entries...)
	}

	return all, nil
}

// WriteCSV writes the owner's entries as CSV and returns how many rows it wrote.
func (s *Service) WriteCSV(ctx context.Context, ownerID string, w io.Writer) (int, error) {
	entries, err := s.Entries(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	if err := writeCSV(w, entries); err != nil {
		return 0, err
	}

	return len(entries), nil
}

// WriteArchive writes a zip holding entries.csv and a plain-text summary.txt.
func (s *Service) WriteArchive(ctx context.Context, ownerID string, w io.Writer) error {
	entries, err := s.Entries(ctx, ownerID)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	modified := s.now()

	f, err := zw.CreateHeader(&zip.FileHeader{Name: "entries.csv", Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("creating entries.csv: %w", err)
	}

	if err := writeCSV(f, entries); err != nil {
		return err
	}

	f, err = zw.CreateHeader(&zip.FileHeader{Name: "summary.txt", Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("creating summary.txt: %w", err)
	}

	if _, err := io.WriteString(f, Summary(entries)); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}

	return nil
}

func writeCSV(w io.Writer, entries []*ledger.Entry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, e := range entries {
		record := []string{
			string(e.Kind),
			e.Description,
			ledger.FormatAmount(e.Amount),
			strconv.FormatBool(e.Active),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing entry %s: %w", e.ID, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	return nil
}

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "Ledger"

// WriteXLSX writes the owner's entries as a spreadsheet with numeric amounts and a
// closing balance row computed from the active entries.
func (s *Service) WriteXLSX(ctx context.Context, ownerID string, w io.Writer) error {
	entries, err := s.Entries(ctx, ownerID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	net := decimal.Zero

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+2, err)
		}

		row := []any{string(e.Kind), e.Description, e.Amount.InexactFloat64(), e.Active}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing entry %s: %w", e.ID, err)
		}

		if !e.Active {
			continue
		}

		if e.Kind == ledger.KindIncome {
			net = net.Add(e.Amount)
		} else {
			net = net.Sub(e.Amount)
		}
	}

	cell, err := excelize.CoordinatesToCellName(2, len(entries)+3)
	if err != nil {
		return fmt.Errorf("addressing balance row: %w", err)
	}

	balance := []any{"Balance", net.InexactFloat64()}
	if err := f.SetSheetRow(SheetName, cell, &balance); err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}

	if err := f.SetColWidth(SheetName, "B", "B", 30); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}

	return nil
}

// Summary renders one line per entry followed by the active totals.
// Inactive entries are listed but left out of the totals.
func Summary(entries []*ledger.Entry) string {
	var (
		sb      strings.Builder
		income  = decimal.Zero
		expense = decimal.Zero
	)

	for _, e := range entries {
		sign := "-"
		if e.Kind == ledger.KindIncome {
			sign = "+"
		}

		status := "active"
		if !e.Active {
			status = "inactive"
		}

		fmt.Fprintf(&sb, "* %s | %s%s | %s\n", e.Description, sign, ledger.FormatAmount(e.Amount), status)

		if !e.Active {
			continue
		}

		if e.Kind == ledger.KindIncome {
			income = income.Add(e.Amount)
		} else {
			expense = expense.Add(e.Amount)
		}
	}

	fmt.Fprintf(&sb, "\nIncome: %s\nExpense: %s\nBalance: %s\n",
		ledger.FormatAmount(income),
		ledger.FormatAmount(expense),
		ledger.FormatAmount(income.Sub(expense)),
	)

	return sb.String()
}
