package search

import "strings"

// TotalType selects how the total result count of a search is produced.
type TotalType int

const (
	// TotalNone skips total-count computation.
	TotalNone TotalType = iota
	// TotalAccurate computes an exact total.
	TotalAccurate
	// TotalEstimate is recognized for parsing and configuration validation
	// but rejected by the compiler; no compiled search carries it.
	TotalEstimate
)

func (t TotalType) String() string {
	switch t {
	case TotalNone:
		return "none"
	case TotalAccurate:
		return "accurate"
	case TotalEstimate:
		return "estimate"
	}
	return "unknown"
}

// supportedTotalValues is interpolated into total-policy error messages.
const supportedTotalValues = "'accurate', 'none'"

// ParseTotalType parses s case-insensitively. ok is false for values outside
// the known set.
func ParseTotalType(s string) (TotalType, bool) {
	switch strings.ToLower(s) {
	case "none":
		return TotalNone, true
	case "accurate":
		return TotalAccurate, true
	case "estimate":
		return TotalEstimate, true
	}
	return TotalNone, false
}

// SortOrder is the direction of one sort entry.
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

func (o SortOrder) String() string {
	if o == SortDescending {
		return "desc"
	}
	return "asc"
}

// SortEntry pairs a sortable parameter with a direction.
type SortEntry struct {
	Parameter *ParamInfo
	Order     SortOrder
}

// UnsupportedSort records a requested sort key the compiler had to skip and
// the reason shown to the caller.
type UnsupportedSort struct {
	Name   string
	Reason string
}

// Parameter is one submitted key=value pair. Slices of Parameter preserve
// the submission order of the query string.
type Parameter struct {
	Key   string
	Value string
}

// SearchOptions is the compiled form of one search request. It is inert
// data: the SQL layer lowers it into a plan without calling back into the
// compiler.
type SearchOptions struct {
	// ContinuationToken is the decoded token, "" on the first page.
	ContinuationToken string
	// MaxItemCount is the page size after defaulting and capping.
	MaxItemCount int
	// IncludeCount caps the rows fanned out per include step.
	IncludeCount int
	// CountOnly selects a bare total count instead of resources.
	CountOnly bool
	Total     TotalType
	// Expression is the combined predicate; nil when the request carries no
	// filters at all.
	Expression Expression
	Sort       []SortEntry
	// UnsupportedParams preserves the pairs the compiler dropped so callers
	// can report partial success.
	UnsupportedParams []Parameter
	UnsupportedSort   []UnsupportedSort
}
