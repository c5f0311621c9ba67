package model

import (
	"errors"
	"fmt"
)

// SearchResult is one organic result returned by the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// EvidenceKind classifies what a piece of evidence suggests changed.
type EvidenceKind string

const (
	EvidenceCompanyChange EvidenceKind = "company_change"
	EvidenceRoleChange    EvidenceKind = "role_change"
)

// Evidence is a single search result's contribution toward a change hypothesis.
type Evidence struct {
	Kind     EvidenceKind `json:"kind"`
	Link     string       `json:"source_link"`
	Snippet  string       `json:"snippet_excerpt"`
	Role     string       `json:"extracted_role,omitempty"`
	Company  string       `json:"extracted_company,omitempty"`
	Keywords []string     `json:"matched_keywords"`
	HasDate  bool         `json:"has_date_signal"`
}

// ErrorKind classifies a per-person check failure.
type ErrorKind string

const (
	ErrorSearchUnavailable ErrorKind = "search_unavailable" // search credential not configured
	ErrorSearchProvider    ErrorKind = "search_provider"    // upstream non-2xx or transport failure
	ErrorPersistence       ErrorKind = "persistence"        // record missing or store failure
	ErrorNotification      ErrorKind = "notification"       // delivery failure
	ErrorInternal          ErrorKind = "internal"
)

// CheckError attaches an ErrorKind to an underlying error.
type CheckError struct {
	Kind ErrorKind
	Err  error
}

// NewCheckError wraps err with kind. A nil err yields nil.
func NewCheckError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &CheckError{Kind: kind, Err: err}
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried anywhere in err's chain, or
// ErrorInternal when none is present.
func KindOf(err error) ErrorKind {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorInternal
}

// CheckOutcome records what happened when one person was checked.
type CheckOutcome struct {
	PersonID    string     `json:"person_id"`
	PersonName  string     `json:"person_name"`
	Changed     bool       `json:"changed"`
	Previous    Position   `json:"previous_position"`
	Proposed    *Position  `json:"proposed_position,omitempty"`
	Confidence  int        `json:"confidence"`
	Evidence    []Evidence `json:"evidence,omitempty"`
	ErrorKind   ErrorKind  `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	NotifyError string     `json:"notify_error,omitempty"`
	EmailIDs    []string   `json:"email_ids,omitempty"`
}

// ChangeAlert is the payload handed to the notifier when a change is recorded.
type ChangeAlert struct {
	PersonName string     `json:"person_name"`
	Previous   Position   `json:"previous_position"`
	Proposed   Position   `json:"proposed_position"`
	Confidence int        `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
	Recipients []string   `json:"recipients"`
}

// SetError records err on the outcome and marks the person unchanged.
func (o *CheckOutcome) SetError(err error) {
	o.Changed = false
	o.ErrorKind = KindOf(err)
	o.Error = err.Error()
}

// Failed reports whether the check itself failed. Notification failures
// alone do not count.
func (o CheckOutcome) Failed() bool {
	return o.Error != ""
}
