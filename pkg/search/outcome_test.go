package search

import (
	"errors"
	"net/http"
	"testing"
)

func TestOutcomeForError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad request", BadRequestf("boom"), http.StatusBadRequest, IssueCodeInvalid},
		{"resource not supported", ResourceNotSupportedf("boom"), http.StatusBadRequest, IssueCodeNotSupported},
		{"param not supported", ParamNotSupportedf("boom"), http.StatusBadRequest, IssueCodeNotSupported},
		{"operation not supported", OperationNotSupportedf("boom"), http.StatusForbidden, IssueCodeNotSupported},
		{"invalid search operation", InvalidSearchOperationf("boom"), http.StatusForbidden, IssueCodeProcessing},
		{"plain error", errors.New("boom"), http.StatusBadRequest, IssueCodeProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, outcome := OutcomeForError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if outcome.ResourceType != "OperationOutcome" {
				t.Errorf("resourceType = %q, want OperationOutcome", outcome.ResourceType)
			}
			if len(outcome.Issue) != 1 {
				t.Fatalf("issues = %d, want 1", len(outcome.Issue))
			}
			issue := outcome.Issue[0]
			if issue.Severity != IssueSeverityError {
				t.Errorf("severity = %q, want error", issue.Severity)
			}
			if issue.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", issue.Code, tt.wantCode)
			}
			if issue.Diagnostics != "boom" {
				t.Errorf("diagnostics = %q, want the error message", issue.Diagnostics)
			}
		})
	}
}

func TestWarningsOutcome(t *testing.T) {
	t.Run("nil when nothing was dropped", func(t *testing.T) {
		opts := &SearchOptions{}
		if outcome := WarningsOutcome(opts); outcome != nil {
			t.Errorf("outcome = %+v, want nil", outcome)
		}
	})

	t.Run("one issue per dropped item", func(t *testing.T) {
		opts := &SearchOptions{
			UnsupportedParams: []Parameter{{Key: "frobnicate", Value: "1"}},
			UnsupportedSort:   []UnsupportedSort{{Name: "gender", Reason: "sorting by 'gender' is not supported"}},
		}
		outcome := WarningsOutcome(opts)
		if outcome == nil {
			t.Fatal("outcome = nil, want warnings")
		}
		if len(outcome.Issue) != 2 {
			t.Fatalf("issues = %d, want 2", len(outcome.Issue))
		}
		for i, issue := range outcome.Issue {
			if issue.Severity != IssueSeverityWarning {
				t.Errorf("issue %d severity = %q, want warning", i, issue.Severity)
			}
			if issue.Code != IssueCodeNotSupported {
				t.Errorf("issue %d code = %q, want not-supported", i, issue.Code)
			}
		}
		if got := outcome.Issue[0].Diagnostics; got != "search parameter 'frobnicate' was ignored" {
			t.Errorf("diagnostics = %q, want the ignored parameter named", got)
		}
		if got := outcome.Issue[1].Diagnostics; got != "sorting by 'gender' is not supported" {
			t.Errorf("diagnostics = %q, want the sort reason verbatim", got)
		}
	})
}
