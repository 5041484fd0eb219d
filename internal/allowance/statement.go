package allowance

import (
	"fmt"
	"io"
	"sort"

	"github.com/moneyseed/moneyseed/internal/model"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const statementSheet = "Statement"

var statementHeaders = []any{"Date", "Type", "Category", "Description", "Amount", "Balance"}

// WriteStatement writes an xlsx statement of txns for p, oldest first, with
// a running balance column.
func WriteStatement(w io.Writer, p *model.Profile, txns []model.AllowanceTransaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	title := "Allowance statement"
	if p != nil {
		title = fmt.Sprintf("Allowance statement for %s", p.Name)
	}
	if err := f.SetCellValue(statementSheet, "A1", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}
	if err := f.SetSheetRow(statementSheet, "A3", &statementHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}

	rows := make([]model.AllowanceTransaction, len(txns))
	copy(rows, txns)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].ID < rows[j].ID
	})

	balance := decimal.Zero
	for i, t := range rows {
		balance = balance.Add(t.Signed())
		row := []any{
			t.Date,
			string(t.Type),
			t.Category,
			t.Description,
			t.Signed().InexactFloat64(),
			balance.InexactFloat64(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(statementSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	f.SetColWidth(statementSheet, "A", "A", 12)
	f.SetColWidth(statementSheet, "C", "C", 16)
	f.SetColWidth(statementSheet, "D", "D", 40)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}
