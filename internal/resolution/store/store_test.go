package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innsearch/internal/person"
	"innsearch/pkg/requestcontext"
	"innsearch/pkg/testutil"
)

func TestSQLiteSink(t *testing.T) {
	ctx := testutil.RunContext("run-1", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	sink, err := Open(ctx, DialectSQLite, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer sink.Close()

	found := person.Person{LastName: "Иванов", FirstName: "Иван", BirthDate: "01.01.1990", DocumentSeries: "0012", DocumentNumber: "000001", Identifier: "770000000001", Status: person.StatusFound}
	missing := person.Person{LastName: "Петров", FirstName: "Пётр", BirthDate: "02.02.1980", DocumentSeries: "0012", DocumentNumber: "000002", Status: person.StatusNotFound}
	require.NoError(t, sink.Commit(ctx, found))
	require.NoError(t, sink.Commit(ctx, missing))

	other := requestcontext.WithRunID(ctx, "run-2")
	require.NoError(t, sink.Commit(other, found))

	rows, err := sink.Rows(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{RunID: "run-1", PersonID: "0012 000001", Identifier: "770000000001", Status: person.StatusFound}, rows[0])
	assert.Equal(t, person.StatusNotFound, rows[1].Status)

	t.Run("reopening keeps existing rows", func(t *testing.T) {
		again, err := New(ctx, sink.db, DialectSQLite)
		require.NoError(t, err)
		rows, err := again.Rows(ctx, "run-2")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "x")
	assert.Error(t, err)
}

func TestNumberedPlaceholders(t *testing.T) {
	assert.Equal(t, "VALUES ($1, $2, $3)", numberedPlaceholders("VALUES (?, ?, ?)"))
}

type stubCommitter struct {
	err   error
	calls int
}

func (s *stubCommitter) Commit(context.Context, person.Person) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	first, second := &stubCommitter{err: boom}, &stubCommitter{}
	err := Multi{first, second}.Commit(context.Background(), person.Person{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, second.calls)
}
