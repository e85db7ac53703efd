package spreadsheet_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"innsearch/internal/person"
	"innsearch/internal/resolution"
	"innsearch/internal/spreadsheet"
	"innsearch/pkg/testutil"
)

func writeInput(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "persons.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	header := []any{"Фамилия", "Имя", "Отчество", "Дата рождения", "Серия паспорта", "Номер"}

	testutil.Given(t, "a sheet with valid and broken rows", func(t *testing.T) {
		path := writeInput(t, [][]any{
			header,
			{" иванов ", "пётр", "сергеевич", "1990-05-15", "12", "3456"},
			{"Петрова", "Анна", "", "01.02.1985", "4510", "123456"},
			{"Сидоров", "", "Ильич", "01.02.1985", "4510", "123456"},
			{"Кузнецов", "Олег", "", "not a date", "4510", "123456"},
			{"Орлов", "Иван", "", 33000, "4510", "654321"},
		})
		persons, err := spreadsheet.NewReader(path, nil).Read(ctx)
		require.NoError(t, err)

		testutil.Then(t, "incomplete and undated rows are skipped", func(t *testing.T) {
			require.Len(t, persons, 3)
		})
		testutil.Then(t, "fields are normalized", func(t *testing.T) {
			p := persons[0]
			assert.Equal(t, "Иванов", p.LastName)
			assert.Equal(t, "Пётр", p.FirstName)
			assert.Equal(t, "Сергеевич", p.Patronymic)
			assert.Equal(t, "15.05.1990", p.BirthDate)
			assert.Equal(t, "0012 003456", p.ID())
		})
		testutil.Then(t, "patronymic is optional", func(t *testing.T) {
			assert.Empty(t, persons[1].Patronymic)
		})
		testutil.Then(t, "serial dates are converted", func(t *testing.T) {
			assert.Equal(t, "07.05.1990", persons[2].BirthDate)
		})
	})

	testutil.Given(t, "an unrecognized column", func(t *testing.T) {
		path := writeInput(t, [][]any{{"Фамилия", "Телефон"}, {"Иванов", "123"}})
		_, err := spreadsheet.NewReader(path, nil).Read(ctx)
		assert.ErrorIs(t, err, spreadsheet.ErrUnknownColumn)
	})

	testutil.Given(t, "a missing file", func(t *testing.T) {
		_, err := spreadsheet.NewReader(filepath.Join(t.TempDir(), "none.xlsx"), nil).Read(ctx)
		assert.Error(t, err)
	})
}

func resolved(last, number string, status person.Status, inn string) person.Person {
	return person.Person{
		LastName:       last,
		FirstName:      "Иван",
		BirthDate:      "01.01.1980",
		DocumentSeries: "4510",
		DocumentNumber: number,
		Identifier:     inn,
		Status:         status,
	}
}

func TestWriter(t *testing.T) {
	ctx := context.Background()

	testutil.Given(t, "no output workbook yet", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.xlsx")
		w := spreadsheet.NewWriter(path)

		testutil.When(t, "two persons are committed", func(t *testing.T) {
			require.NoError(t, w.Commit(ctx, resolved("Орлов", "000001", person.StatusFound, "770000000001")))
			require.NoError(t, w.Commit(ctx, resolved("Седов", "000002", person.StatusNotFound, "")))

			testutil.Then(t, "one header and two rows are written", func(t *testing.T) {
				f, err := excelize.OpenFile(path)
				require.NoError(t, err)
				defer f.Close()

				assert.Equal(t, spreadsheet.OutputSheet, f.GetSheetName(f.GetActiveSheetIndex()))
				rows, err := f.GetRows(spreadsheet.OutputSheet)
				require.NoError(t, err)
				require.Len(t, rows, 3)
				assert.Equal(t, []string{"Фамилия", "Имя", "Отчество", "Дата рождения", "Серия", "Номер", "ИНН", "Статус"}, rows[0])
				assert.Equal(t, "000001", rows[1][5])
				assert.Equal(t, "Успешно", rows[1][7])
				assert.Equal(t, "ИНН не найден", rows[2][7])
			})

			testutil.Then(t, "results read back with their statuses", func(t *testing.T) {
				got, err := spreadsheet.ReadResults(path)
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Equal(t, person.StatusFound, got[0].Status)
				assert.Equal(t, "770000000001", got[0].Identifier)
				assert.Equal(t, person.StatusNotFound, got[1].Status)
			})
		})
	})
}

func TestGuardedConcurrentCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	guard, err := resolution.NewGuard(spreadsheet.NewWriter(path), nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, p := range []person.Person{
		resolved("Орлов", "000001", person.StatusFound, "770000000001"),
		resolved("Седов", "000002", person.StatusError, ""),
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, guard.Commit(context.Background(), p))
		}()
	}
	wg.Wait()

	got, err := spreadsheet.ReadResults(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ID(), got[1].ID()}
	assert.ElementsMatch(t, []string{"4510 000001", "4510 000002"}, ids)
	for _, p := range got {
		assert.NotEmpty(t, p.Status)
		assert.NoError(t, p.Validate())
	}
}

func TestDefaultOutputPath(t *testing.T) {
	start := time.Date(2026, 3, 7, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "search_inn_2026-03-07_14-05-09.xlsx", spreadsheet.DefaultOutputPath(start))
}
