package sqlplan

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ehr/searchcore/pkg/search"
)

// Renderer lowers a linearized plan into one Postgres statement. Each table
// expression becomes a CTE; the outer statement joins the final set back to
// the resource table for payloads and applies the sort.
type Renderer struct{}

// NewRenderer returns a renderer for the generic search schema.
func NewRenderer() *Renderer {
	return &Renderer{}
}

type renderedCTE struct {
	name string
	sql  string
	args []any
}

// Render produces the statement and its positional arguments.
func (r *Renderer) Render(root RootExpression, opts *search.SearchOptions) (string, []any, error) {
	if opts.CountOnly {
		return r.renderCount(root)
	}
	if len(root.Tables) == 0 {
		return "", nil, fmt.Errorf("sqlplan: empty plan")
	}

	var (
		ctes        []renderedCTE
		prev        string
		top         string
		lastInclude string
		includeSets []string
		hasUnion    bool
	)
	for i, te := range root.Tables {
		name := fmt.Sprintf("cte%d", i)
		in := StepInput{Prev: prev, Top: top, IncludeSets: includeSets, Opts: opts}

		switch te.Kind {
		case KindAll, KindNormal:
			if te.Generator == nil {
				return "", nil, fmt.Errorf("sqlplan: %s step has no generator", te.Kind)
			}
			b, err := te.Generator.Render(te, in)
			if err != nil {
				return "", nil, err
			}
			sqlStr, args, err := b.ToSql()
			if err != nil {
				return "", nil, err
			}
			ctes = append(ctes, renderedCTE{name: name, sql: sqlStr, args: args})
			prev = name

		case KindTop:
			// One extra row signals that another page exists.
			b := sq.Select("surrogate_id", "resource_type", "resource_id").
				From(prev).
				OrderBy("surrogate_id ASC").
				Limit(uint64(opts.MaxItemCount) + 1)
			sqlStr, args, err := b.ToSql()
			if err != nil {
				return "", nil, err
			}
			ctes = append(ctes, renderedCTE{name: name, sql: sqlStr, args: args})
			top, prev = name, name

		case KindInclude:
			if te.Generator == nil {
				return "", nil, fmt.Errorf("sqlplan: include step has no generator")
			}
			b, err := te.Generator.Render(te, in)
			if err != nil {
				return "", nil, err
			}
			sqlStr, args, err := b.ToSql()
			if err != nil {
				return "", nil, err
			}
			ctes = append(ctes, renderedCTE{name: name, sql: sqlStr, args: args})
			lastInclude = name

		case KindIncludeLimit:
			if lastInclude == "" {
				return "", nil, fmt.Errorf("sqlplan: include limit step without a preceding include")
			}
			b := sq.Select("surrogate_id", "resource_type", "resource_id").
				From(lastInclude).
				Limit(uint64(opts.IncludeCount))
			sqlStr, args, err := b.ToSql()
			if err != nil {
				return "", nil, err
			}
			ctes = append(ctes, renderedCTE{name: name, sql: sqlStr, args: args})
			includeSets = append(includeSets, name)

		case KindIncludeUnionAll:
			if top == "" {
				return "", nil, fmt.Errorf("sqlplan: union step without a page cap")
			}
			parts := make([]string, 0, len(includeSets)+1)
			parts = append(parts, "SELECT surrogate_id, resource_type, resource_id, TRUE AS is_match FROM "+top)
			for _, s := range includeSets {
				parts = append(parts, "SELECT surrogate_id, resource_type, resource_id, FALSE AS is_match FROM "+s)
			}
			ctes = append(ctes, renderedCTE{name: name, sql: strings.Join(parts, " UNION ALL ")})
			prev = name
			hasUnion = true

		default:
			return "", nil, fmt.Errorf("sqlplan: unknown step kind %v", te.Kind)
		}
	}

	cols := []string{"f.surrogate_id", "f.resource_type", "f.resource_id"}
	if hasUnion {
		cols = append(cols, "f.is_match")
	}
	cols = append(cols, "res.last_updated", "res.payload")
	outer := sq.Select(cols...).
		From(prev + " f").
		Join(tableResource + " res ON res.surrogate_id = f.surrogate_id")

	var order []string
	if hasUnion {
		// Matches come before included rows.
		order = append(order, "f.is_match DESC")
	}
	if len(opts.Sort) > 0 {
		entry := opts.Sort[0]
		dir := "ASC"
		if entry.Order == search.SortDescending {
			dir = "DESC"
		}
		if entry.Parameter.Name == "_lastUpdated" {
			order = append(order, "res.last_updated "+dir+" NULLS LAST")
		} else {
			col, err := sortColumn(entry.Parameter.Type)
			if err != nil {
				return "", nil, err
			}
			outer = outer.LeftJoin(
				tableSearchIndex+" sortidx ON sortidx.resource_surrogate_id = f.surrogate_id AND sortidx.parameter_name = ?",
				entry.Parameter.Name)
			order = append(order, "sortidx."+col+" "+dir+" NULLS LAST")
		}
	}
	order = append(order, "f.surrogate_id ASC")
	outer = outer.OrderBy(order...)

	outerSQL, outerArgs, err := outer.ToSql()
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var args []any
	sb.WriteString("WITH ")
	for i, c := range ctes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.name)
		sb.WriteString(" AS (")
		sb.WriteString(c.sql)
		sb.WriteString(")")
		args = append(args, c.args...)
	}
	sb.WriteString(" ")
	sb.WriteString(outerSQL)
	args = append(args, outerArgs...)

	final, err := sq.Dollar.ReplacePlaceholders(sb.String())
	if err != nil {
		return "", nil, err
	}
	return final, args, nil
}

// renderCount collapses the filtering steps into a single COUNT. Includes
// never contribute to totals and the page cap does not apply.
func (r *Renderer) renderCount(root RootExpression) (string, []any, error) {
	conds := sq.And{sq.Eq{"r.is_deleted": false}}
	for _, te := range root.Tables {
		if te.Kind != KindAll && te.Kind != KindNormal {
			continue
		}
		if te.Predicate == nil {
			continue
		}
		cond, err := predicateSqlizer(te.Predicate)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
	}
	b := sq.Select("COUNT(*)").From(tableResource + " r").Where(conds)
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return "", nil, err
	}
	final, err := sq.Dollar.ReplacePlaceholders(sqlStr)
	if err != nil {
		return "", nil, err
	}
	return final, args, nil
}

func sortColumn(t search.ParamType) (string, error) {
	switch t {
	case search.ParamToken:
		return "token_code", nil
	case search.ParamString:
		return "string_value", nil
	case search.ParamDate:
		return "date_start", nil
	case search.ParamNumber:
		return "number_value", nil
	case search.ParamQuantity:
		return "quantity_value", nil
	case search.ParamURI:
		return "uri_value", nil
	case search.ParamReference:
		return "reference_id", nil
	}
	return "", fmt.Errorf("sqlplan: parameter type %v is not sortable", t)
}

// Explainer wires the assembler, linearizer and renderer behind the
// search.Explainer contract.
type Explainer struct {
	dispatcher *GeneratorDispatcher
	renderer   *Renderer
}

// NewExplainer returns an explainer for the generic search schema.
func NewExplainer() *Explainer {
	return &Explainer{
		dispatcher: NewGeneratorDispatcher(),
		renderer:   NewRenderer(),
	}
}

// Explain lowers the compiled options into a plan and its SQL.
func (e *Explainer) Explain(opts *search.SearchOptions) (*search.Explanation, error) {
	root := Linearize(Assemble(opts, e.dispatcher))
	sqlText, args, err := e.renderer.Render(root, opts)
	if err != nil {
		return nil, err
	}
	return &search.Explanation{Plan: root.Steps(), SQL: sqlText, Args: args}, nil
}
