package search

import (
	"fmt"
	"net/http"
)

// OperationOutcome is the error and warning envelope returned by the HTTP
// surface.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

const (
	IssueSeverityError   = "error"
	IssueSeverityWarning = "warning"

	IssueCodeInvalid      = "invalid"
	IssueCodeNotSupported = "not-supported"
	IssueCodeProcessing   = "processing"
)

// NewOperationOutcome builds a single-issue outcome.
func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: severity, Code: code, Diagnostics: diagnostics},
		},
	}
}

// OutcomeForError converts a compile failure into the outcome and HTTP
// status a handler should return.
func OutcomeForError(err error) (int, *OperationOutcome) {
	status := http.StatusBadRequest
	code := IssueCodeProcessing
	if kind, ok := KindOf(err); ok {
		switch kind {
		case KindBadRequest:
			code = IssueCodeInvalid
		case KindResourceNotSupported, KindParamNotSupported:
			code = IssueCodeNotSupported
		case KindOperationNotSupported:
			code = IssueCodeNotSupported
			status = http.StatusForbidden
		case KindInvalidSearchOperation:
			code = IssueCodeProcessing
			status = http.StatusForbidden
		}
	}
	return status, NewOperationOutcome(IssueSeverityError, code, err.Error())
}

// WarningsOutcome reports the parameters and sort keys a compiled search
// dropped. It returns nil when nothing was dropped.
func WarningsOutcome(opts *SearchOptions) *OperationOutcome {
	issues := make([]OperationOutcomeIssue, 0, len(opts.UnsupportedParams)+len(opts.UnsupportedSort))
	for _, p := range opts.UnsupportedParams {
		issues = append(issues, OperationOutcomeIssue{
			Severity:    IssueSeverityWarning,
			Code:        IssueCodeNotSupported,
			Diagnostics: fmt.Sprintf("search parameter '%s' was ignored", p.Key),
		})
	}
	for _, s := range opts.UnsupportedSort {
		issues = append(issues, OperationOutcomeIssue{
			Severity:    IssueSeverityWarning,
			Code:        IssueCodeNotSupported,
			Diagnostics: s.Reason,
		})
	}
	if len(issues) == 0 {
		return nil
	}
	return &OperationOutcome{ResourceType: "OperationOutcome", Issue: issues}
}
