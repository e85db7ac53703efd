//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"innsearch/internal/person"
	"innsearch/internal/resolution/store"
	"innsearch/pkg/requestcontext"
	"innsearch/pkg/testutil/containers"
)

type PostgresSinkSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	sink     *store.SQLSink
}

func TestPostgresSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSinkSuite))
}

func (s *PostgresSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	sink, err := store.New(context.Background(), s.postgres.DB, store.DialectPostgres)
	s.Require().NoError(err)
	s.sink = sink
}

func (s *PostgresSinkSuite) SetupTest() {
	_, err := s.postgres.DB.Exec(`TRUNCATE resolutions`)
	s.Require().NoError(err)
}

func (s *PostgresSinkSuite) TestCommitAndReadBack() {
	ctx := requestcontext.WithRunID(context.Background(), "run-pg")
	p := person.Person{LastName: "Иванов", FirstName: "Иван", BirthDate: "01.01.1990", DocumentSeries: "0012", DocumentNumber: "003456", Identifier: "770000000001", Status: person.StatusFound}

	s.Require().NoError(s.sink.Commit(ctx, p))

	rows, err := s.sink.Rows(ctx, "run-pg")
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("0012 003456", rows[0].PersonID)
	s.Equal("770000000001", rows[0].Identifier)
}
