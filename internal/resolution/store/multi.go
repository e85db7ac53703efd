package store

import (
	"context"
	"errors"

	"innsearch/internal/person"
)

// Committer is anything that stores one resolved person.
type Committer interface {
	Commit(ctx context.Context, p person.Person) error
}

// Multi commits to every sink in order and joins their errors. A failing sink
// does not stop the others.
type Multi []Committer

func (m Multi) Commit(ctx context.Context, p person.Person) error {
	var errs []error
	for _, c := range m {
		if err := c.Commit(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
