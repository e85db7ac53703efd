// Package spreadsheet reads the input person table and appends resolved
// persons to the output workbook.
package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"innsearch/internal/person"
)

// Column headers shared by the input and output sheets.
const (
	ColLastName   = "Фамилия"
	ColFirstName  = "Имя"
	ColPatronymic = "Отчество"
	ColBirthDate  = "Дата рождения"
	ColSeries     = "Серия"
	ColNumber     = "Номер"
	ColIdentifier = "ИНН"
	ColStatus     = "Статус"
)

var ErrUnknownColumn = errors.New("unknown column in input sheet")

type field int

const (
	fieldLastName field = iota
	fieldFirstName
	fieldPatronymic
	fieldBirthDate
	fieldSeries
	fieldNumber
	fieldIdentifier
	fieldStatus
)

type column struct {
	header string
	field  field
}

var inputColumns = []column{
	{ColLastName, fieldLastName},
	{ColFirstName, fieldFirstName},
	{ColPatronymic, fieldPatronymic},
	{ColBirthDate, fieldBirthDate},
	{ColSeries, fieldSeries},
	{ColNumber, fieldNumber},
}

var outputColumns = append(inputColumns[:len(inputColumns):len(inputColumns)],
	column{ColIdentifier, fieldIdentifier},
	column{ColStatus, fieldStatus},
)

// matchColumn accepts headers that contain the known name or are contained
// in it, so "Фамилия клиента" and "Дата" both resolve.
func matchColumn(header string, columns []column) (field, bool) {
	header = strings.TrimSpace(header)
	for _, c := range columns {
		if strings.Contains(header, c.header) || strings.Contains(c.header, header) {
			return c.field, true
		}
	}
	return 0, false
}

// Reader loads persons from the active sheet of an xlsx file. The first row
// is the header.
type Reader struct {
	path   string
	logger *slog.Logger
}

func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// Read returns the normalized persons. Rows missing a required field or
// carrying an unparseable birth date are skipped.
func (r *Reader) Read(ctx context.Context) ([]person.Person, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", r.path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	fields, err := headerFields(rows[0], inputColumns)
	if err != nil {
		return nil, err
	}

	var persons []person.Person
	for i, row := range rows[1:] {
		raw := toPerson(row, fields)
		p, err := person.Normalize(raw)
		if err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "input row skipped", "row", i+2, "error", err)
			}
			continue
		}
		persons = append(persons, p)
	}
	return persons, nil
}

func headerFields(header []string, columns []column) (map[int]field, error) {
	fields := make(map[int]field, len(header))
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			continue
		}
		f, ok := matchColumn(h, columns)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, h)
		}
		fields[i] = f
	}
	return fields, nil
}

func toPerson(row []string, fields map[int]field) person.Person {
	var p person.Person
	for i, value := range row {
		f, ok := fields[i]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch f {
		case fieldLastName:
			p.LastName = value
		case fieldFirstName:
			p.FirstName = value
		case fieldPatronymic:
			p.Patronymic = value
		case fieldBirthDate:
			p.BirthDate = value
		case fieldSeries:
			p.DocumentSeries = value
		case fieldNumber:
			p.DocumentNumber = value
		case fieldIdentifier:
			p.Identifier = value
		case fieldStatus:
			if s, ok := person.ParseStatusLabel(value); ok {
				p.Status = s
			}
		}
	}
	return p
}
