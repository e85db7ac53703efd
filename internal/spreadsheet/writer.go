package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"innsearch/internal/person"
)

// OutputSheet names the sheet created in a new output workbook.
const OutputSheet = "ИНН"

// DefaultOutputPath names the output workbook after the run start time.
func DefaultOutputPath(start time.Time) string {
	return "search_inn_" + start.Format("2006-01-02_15-04-05") + ".xlsx"
}

// Writer appends one row per committed person. A missing workbook is created
// with a header row. Writer is not safe for concurrent use; callers go through
// resolution.Guard.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) Path() string { return w.path }

// Commit opens the workbook, appends the person and saves it back.
func (w *Writer) Commit(_ context.Context, p person.Person) error {
	f, sheet, created, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	next := len(rows) + 1
	if created {
		if err := setRow(f, sheet, 1, headerRow()); err != nil {
			return err
		}
		next = 2
	}
	if err := setRow(f, sheet, next, personRow(p)); err != nil {
		return err
	}

	if created {
		err = f.SaveAs(w.path)
	} else {
		err = f.Save()
	}
	if err != nil {
		return fmt.Errorf("save output %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) open() (*excelize.File, string, bool, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, f.GetSheetName(f.GetActiveSheetIndex()), false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("open output %s: %w", w.path, err)
	}

	f = excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), OutputSheet); err != nil {
		_ = f.Close()
		return nil, "", false, fmt.Errorf("create output sheet: %w", err)
	}
	return f, OutputSheet, true, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func headerRow() []any {
	out := make([]any, len(outputColumns))
	for i, c := range outputColumns {
		out[i] = c.header
	}
	return out
}

// personRow writes every field as text so zero padding survives.
func personRow(p person.Person) []any {
	return []any{
		p.LastName,
		p.FirstName,
		p.Patronymic,
		p.BirthDate,
		p.DocumentSeries,
		p.DocumentNumber,
		p.Identifier,
		p.Status.Label(),
	}
}

// ReadResults loads an output workbook back into persons, statuses included.
func ReadResults(path string) ([]person.Person, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	fields, err := headerFields(rows[0], outputColumns)
	if err != nil {
		return nil, err
	}
	out := make([]person.Person, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, toPerson(row, fields))
	}
	return out, nil
}
