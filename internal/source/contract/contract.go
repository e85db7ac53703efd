// Package contract holds reusable checks that every lookup source must pass.
package contract

import (
	"context"
	"encoding/json"
	"testing"

	"innsearch/internal/person"
	"innsearch/internal/source"
)

// Test defines one successful lookup a source must answer.
type Test struct {
	Name         string
	Source       source.Source
	Input        person.Person
	Want         person.Status
	ValidateFunc func(out person.SearchOutcome) error
}

// Suite is a collection of contract tests for a source
type Suite struct {
	SourceName string
	Tests      []Test
}

// Run executes all contract tests in the suite
func (s *Suite) Run(t *testing.T) {
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			out, err := test.Source.Lookup(context.Background(), test.Input)
			if err != nil {
				t.Fatalf("source lookup failed: %v", err)
			}

			if test.Source.Name() != s.SourceName {
				t.Errorf("expected source name %s, got %s", s.SourceName, test.Source.Name())
			}
			if out.Source != s.SourceName {
				t.Errorf("outcome attributed to %q, want %q", out.Source, s.SourceName)
			}
			if out.Status != test.Want {
				t.Errorf("expected status %s, got %s", test.Want, out.Status)
			}

			// Found and only Found carries an identifier.
			if out.Found() != (out.Identifier != "") {
				t.Errorf("status %s with identifier %q", out.Status, out.Identifier)
			}
			if out.Status == person.StatusError {
				t.Error("sources report failures as errors, not Error outcomes")
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(out); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}

			if testing.Verbose() {
				raw, _ := json.MarshalIndent(out, "", "  ")
				t.Logf("outcome:\n%s", raw)
			}
		})
	}
}

// ErrorTest validates that source errors follow the taxonomy
type ErrorTest struct {
	Name          string
	Source        source.Source
	Input         person.Person
	ExpectedError source.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (et *ErrorTest) Run(t *testing.T) {
	t.Run(et.Name, func(t *testing.T) {
		_, err := et.Source.Lookup(context.Background(), et.Input)
		if err == nil {
			t.Fatal("expected error but got none")
		}

		if category := source.GetCategory(err); category != et.ExpectedError {
			t.Errorf("expected error category %s, got %s", et.ExpectedError, category)
		}
		if retryable := source.IsRetryable(err); retryable != et.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", et.ExpectedRetry, retryable)
		}
	})
}
