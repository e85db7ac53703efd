package person

// SearchOutcome is the immutable result of resolving one person.
type SearchOutcome struct {
	Identifier string `json:"identifier,omitempty"`
	Status     Status `json:"status"`
	// Source names the lookup service (or cache) that produced the outcome.
	Source string `json:"source,omitempty"`
	// Cause is the error that led to StatusError, kept for observability.
	Cause error `json:"-"`
}

// Found reports whether the outcome carries an identifier.
func (o SearchOutcome) Found() bool {
	return o.Status == StatusFound && o.Identifier != ""
}

func FoundOutcome(source, identifier string) SearchOutcome {
	return SearchOutcome{Identifier: identifier, Status: StatusFound, Source: source}
}

func NotFoundOutcome(source string) SearchOutcome {
	return SearchOutcome{Status: StatusNotFound, Source: source}
}

func ErrorOutcome(source string, cause error) SearchOutcome {
	return SearchOutcome{Status: StatusError, Source: source, Cause: cause}
}
