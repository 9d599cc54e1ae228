// Package sqlplan models the per-statement logical plan the SQL layer
// renders. It owns the include reordering pass that lets each plan step
// read only rows produced by steps already materialized, and a reference
// renderer that lowers plans to a single Postgres statement.
package sqlplan

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ehr/searchcore/pkg/search"
)

// TableExpressionKind tags one plan step. The set is closed; renderers
// switch exhaustively over it.
type TableExpressionKind int

const (
	// KindAll scans the resource table with the denormalized predicates.
	KindAll TableExpressionKind = iota
	// KindNormal narrows the running set through one indexed predicate.
	KindNormal
	// KindTop caps the primary result set at the requested page size.
	KindTop
	// KindInclude fans out to referenced or referencing resources.
	KindInclude
	// KindIncludeLimit caps the fan-out of the include step before it.
	KindIncludeLimit
	// KindIncludeUnionAll stitches the capped include sets onto the page.
	KindIncludeUnionAll
)

func (k TableExpressionKind) String() string {
	switch k {
	case KindAll:
		return "All"
	case KindNormal:
		return "Normal"
	case KindTop:
		return "Top"
	case KindInclude:
		return "Include"
	case KindIncludeLimit:
		return "IncludeLimit"
	case KindIncludeUnionAll:
		return "IncludeUnionAll"
	}
	return "Unknown"
}

// StepInput names the CTEs available to one step when it renders.
type StepInput struct {
	// Prev is the CTE holding the running primary set.
	Prev string
	// Top is the CTE holding the capped primary page, "" before KindTop.
	Top string
	// IncludeSets are the capped CTEs of the include steps rendered so far.
	IncludeSets []string
	Opts        *search.SearchOptions
}

// QueryGenerator renders one plan step into a SELECT for the CTE chain.
// The linearizer copies generator references without inspecting them.
type QueryGenerator interface {
	Render(te TableExpression, in StepInput) (sq.SelectBuilder, error)
}

// TableExpression is one step of a plan.
type TableExpression struct {
	Kind TableExpressionKind
	// Generator renders the step; nil on synthesized marker steps, which
	// the renderer handles by kind.
	Generator QueryGenerator
	// Include carries the directive for KindInclude steps.
	Include *search.IncludeExpression
	// Predicate carries the filter for KindAll and KindNormal steps.
	Predicate search.Expression
}

func (te TableExpression) String() string {
	if te.Kind == KindInclude && te.Include != nil {
		return fmt.Sprintf("Include%s", te.Include)
	}
	return te.Kind.String()
}

// RootExpression is the logical structure of one SQL statement.
type RootExpression struct {
	Tables []TableExpression
}

// Steps renders the plan as kind strings, include directives spelled out.
func (r RootExpression) Steps() []string {
	out := make([]string, len(r.Tables))
	for i, te := range r.Tables {
		out[i] = te.String()
	}
	return out
}
