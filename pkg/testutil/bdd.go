package testutil

import "testing"

// Given, When and Then name nested subtests after the scenario step they
// describe, so `go test -run` output reads as the scenario.
func Given(t *testing.T, precondition string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", precondition, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", action, fn)
}

func Then(t *testing.T, expectation string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", expectation, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(keyword+" "+desc, fn)
}
