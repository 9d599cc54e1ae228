package sqlplan

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ehr/searchcore/pkg/search"
)

// Table names of the generic search schema. Resource payloads live on
// resource; indexed parameter values, references and compartment membership
// are extracted into side tables at write time.
const (
	tableResource    = "resource"
	tableSearchIndex = "search_index"
	tableReference   = "resource_reference"
	tableCompartment = "compartment_assignment"
)

// GeneratorDispatcher binds plan steps to renderers. The indirection keeps
// the assembler and linearizer free of SQL concerns; TableExpression
// carries only the opaque reference.
type GeneratorDispatcher struct {
	all     QueryGenerator
	narrow  QueryGenerator
	include QueryGenerator
}

// NewGeneratorDispatcher returns the default Postgres generators.
func NewGeneratorDispatcher() *GeneratorDispatcher {
	return &GeneratorDispatcher{
		all:     &allGenerator{},
		narrow:  &narrowGenerator{},
		include: &includeGenerator{},
	}
}

// All returns the generator for the leading resource scan.
func (d *GeneratorDispatcher) All() QueryGenerator { return d.all }

// Include returns the generator for include steps.
func (d *GeneratorDispatcher) Include() QueryGenerator { return d.include }

// ForPredicate picks the generator for a Normal step. Every current
// predicate narrows the running set with a correlated condition; the
// dispatch point exists so storage layers can bind specialized generators
// per predicate shape.
func (d *GeneratorDispatcher) ForPredicate(search.Expression) QueryGenerator { return d.narrow }

// allGenerator scans the resource table, applying the denormalized
// predicates and the continuation watermark.
type allGenerator struct{}

func (g *allGenerator) Render(te TableExpression, in StepInput) (sq.SelectBuilder, error) {
	conds := sq.And{sq.Eq{"r.is_deleted": false}}
	if te.Predicate != nil {
		cond, err := predicateSqlizer(te.Predicate)
		if err != nil {
			return sq.SelectBuilder{}, err
		}
		conds = append(conds, cond)
	}
	if in.Opts.ContinuationToken != "" {
		// The watermark is the surrogate id of the last row on the
		// previous page.
		watermark, err := strconv.ParseInt(in.Opts.ContinuationToken, 10, 64)
		if err != nil {
			return sq.SelectBuilder{}, search.BadRequestf("continuation token is not valid for this search")
		}
		conds = append(conds, sq.Gt{"r.surrogate_id": watermark})
	}
	return sq.Select("r.surrogate_id", "r.resource_type", "r.resource_id").
		From(tableResource + " r").
		Where(conds), nil
}

// narrowGenerator filters the running set through one correlated predicate.
type narrowGenerator struct{}

func (g *narrowGenerator) Render(te TableExpression, in StepInput) (sq.SelectBuilder, error) {
	if te.Predicate == nil {
		return sq.SelectBuilder{}, fmt.Errorf("sqlplan: normal step has no predicate")
	}
	cond, err := predicateSqlizer(te.Predicate)
	if err != nil {
		return sq.SelectBuilder{}, err
	}
	return sq.Select("r.surrogate_id", "r.resource_type", "r.resource_id").
		From(in.Prev + " r").
		Where(cond), nil
}

// includeGenerator fans out through the reference table. Forward includes
// produce the rows a reference points at; reversed ones produce the rows
// owning a reference into the source set. Iterating steps read the capped
// sets of every include step already rendered, not only the primary page.
type includeGenerator struct{}

func (g *includeGenerator) Render(te TableExpression, in StepInput) (sq.SelectBuilder, error) {
	inc := te.Include
	if inc == nil {
		return sq.SelectBuilder{}, fmt.Errorf("sqlplan: include step has no directive")
	}
	if in.Top == "" {
		return sq.SelectBuilder{}, fmt.Errorf("sqlplan: include step rendered before the page cap")
	}

	sources := []string{in.Top}
	if inc.Iterate {
		sources = append(sources, in.IncludeSets...)
	}
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = "SELECT surrogate_id FROM " + s
	}
	sourceSet := strings.Join(parts, " UNION ALL ")

	producedCol := "rr.target_surrogate_id"
	consumedCol := "rr.resource_surrogate_id"
	if inc.Reversed {
		producedCol, consumedCol = consumedCol, producedCol
	}

	conds := sq.And{
		sq.Expr(consumedCol + " IN (" + sourceSet + ")"),
		sq.Eq{"r.is_deleted": false},
	}
	if !inc.WildCard && inc.Parameter != nil {
		conds = append(conds, sq.Eq{"rr.parameter_name": inc.Parameter.Name})
	}
	if inc.ResourceType != "" {
		conds = append(conds, sq.Eq{"rr.source_type": inc.ResourceType})
	}
	switch {
	case inc.TargetType != "":
		conds = append(conds, sq.Eq{"rr.target_type": inc.TargetType})
	case !inc.WildCard && inc.Parameter != nil && len(inc.Parameter.TargetTypes) > 0:
		conds = append(conds, sq.Eq{"rr.target_type": inc.Parameter.TargetTypes})
	}

	return sq.Select("r.surrogate_id", "r.resource_type", "r.resource_id").
		Distinct().
		From(tableReference + " rr").
		Join(tableResource + " r ON r.surrogate_id = " + producedCol).
		Where(conds), nil
}

// predicateSqlizer renders an expression as a condition correlated to the
// resource alias r.
func predicateSqlizer(e search.Expression) (sq.Sqlizer, error) {
	switch x := e.(type) {
	case *search.MultiaryExpression:
		parts := make([]sq.Sqlizer, 0, len(x.Children))
		for _, child := range x.Children {
			s, err := predicateSqlizer(child)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		if x.Operator == search.MultiaryOpOr {
			return sq.Or(parts), nil
		}
		return sq.And(parts), nil
	case *search.SearchParameterExpression:
		return paramSqlizer(x)
	case *search.CompartmentSearchExpression:
		return existsSqlizer(sq.Select("1").
			From(tableCompartment + " ca").
			Where(sq.And{
				sq.Expr("ca.resource_surrogate_id = r.surrogate_id"),
				sq.Eq{"ca.compartment_type": string(x.CompartmentType)},
				sq.Eq{"ca.compartment_id": x.CompartmentID},
			}))
	}
	return nil, fmt.Errorf("sqlplan: expression %T cannot be rendered as a predicate", e)
}

func paramSqlizer(e *search.SearchParameterExpression) (sq.Sqlizer, error) {
	if isDenormalizedParam(e.Parameter.Name) {
		return resourceSqlizer(e.Parameter.Name, e.Child)
	}
	inner, err := indexSqlizer(e.Child)
	if err != nil {
		return nil, err
	}
	return existsSqlizer(sq.Select("1").
		From(tableSearchIndex + " si").
		Where(sq.And{
			sq.Expr("si.resource_surrogate_id = r.surrogate_id"),
			sq.Eq{"si.parameter_name": e.Parameter.Name},
			inner,
		}))
}

func existsSqlizer(b sq.SelectBuilder) (sq.Sqlizer, error) {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("EXISTS ("+sqlStr+")", args...), nil
}

// indexSqlizer renders a leaf tree against the search_index alias si.
func indexSqlizer(e search.Expression) (sq.Sqlizer, error) {
	switch x := e.(type) {
	case *search.MultiaryExpression:
		parts := make([]sq.Sqlizer, 0, len(x.Children))
		for _, child := range x.Children {
			s, err := indexSqlizer(child)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		if x.Operator == search.MultiaryOpOr {
			return sq.Or(parts), nil
		}
		return sq.And(parts), nil
	case *search.StringExpression:
		col, err := indexColumn(x.Field)
		if err != nil {
			return nil, err
		}
		return stringSqlizer(col, x), nil
	case *search.BinaryExpression:
		col, err := indexColumn(x.Field)
		if err != nil {
			return nil, err
		}
		return binarySqlizer(col, x), nil
	}
	return nil, fmt.Errorf("sqlplan: expression %T cannot be rendered against the search index", e)
}

// resourceSqlizer renders a leaf tree for a parameter stored as a resource
// table column.
func resourceSqlizer(param string, e search.Expression) (sq.Sqlizer, error) {
	col, err := resourceColumn(param)
	if err != nil {
		return nil, err
	}
	var walk func(search.Expression) (sq.Sqlizer, error)
	walk = func(e search.Expression) (sq.Sqlizer, error) {
		switch x := e.(type) {
		case *search.MultiaryExpression:
			parts := make([]sq.Sqlizer, 0, len(x.Children))
			for _, child := range x.Children {
				s, err := walk(child)
				if err != nil {
					return nil, err
				}
				parts = append(parts, s)
			}
			if x.Operator == search.MultiaryOpOr {
				return sq.Or(parts), nil
			}
			return sq.And(parts), nil
		case *search.StringExpression:
			return stringSqlizer(col, x), nil
		case *search.BinaryExpression:
			return binarySqlizer(col, x), nil
		}
		return nil, fmt.Errorf("sqlplan: expression %T cannot be rendered against %s", e, col)
	}
	return walk(e)
}

func resourceColumn(param string) (string, error) {
	switch param {
	case "_id":
		return "r.resource_id", nil
	case search.ParamTypeName:
		return "r.resource_type", nil
	case "_lastUpdated":
		return "r.last_updated", nil
	}
	return "", fmt.Errorf("sqlplan: parameter %q has no resource column", param)
}

func indexColumn(f search.FieldName) (string, error) {
	switch f {
	case search.FieldTokenCode:
		return "si.token_code", nil
	case search.FieldTokenSystem:
		return "si.token_system", nil
	case search.FieldString:
		return "si.string_value", nil
	case search.FieldNumber:
		return "si.number_value", nil
	case search.FieldQuantity:
		return "si.quantity_value", nil
	case search.FieldDateStart:
		return "si.date_start", nil
	case search.FieldDateEnd:
		return "si.date_end", nil
	case search.FieldReferenceID:
		return "si.reference_id", nil
	case search.FieldReferenceType:
		return "si.reference_type", nil
	case search.FieldURI:
		return "si.uri_value", nil
	}
	return "", fmt.Errorf("sqlplan: field %v has no index column", f)
}

func stringSqlizer(col string, x *search.StringExpression) sq.Sqlizer {
	switch x.Operator {
	case search.StringOpStartsWith:
		if x.IgnoreCase {
			return sq.ILike{col: x.Value + "%"}
		}
		return sq.Like{col: x.Value + "%"}
	case search.StringOpContains:
		if x.IgnoreCase {
			return sq.ILike{col: "%" + x.Value + "%"}
		}
		return sq.Like{col: "%" + x.Value + "%"}
	}
	if x.IgnoreCase {
		return sq.Expr("LOWER("+col+") = LOWER(?)", x.Value)
	}
	return sq.Eq{col: x.Value}
}

func binarySqlizer(col string, x *search.BinaryExpression) sq.Sqlizer {
	switch x.Operator {
	case search.BinaryOpNotEqual:
		return sq.NotEq{col: x.Value}
	case search.BinaryOpGreaterThan:
		return sq.Gt{col: x.Value}
	case search.BinaryOpGreaterOrEqual:
		return sq.GtOrEq{col: x.Value}
	case search.BinaryOpLessThan:
		return sq.Lt{col: x.Value}
	case search.BinaryOpLessOrEqual:
		return sq.LtOrEq{col: x.Value}
	}
	return sq.Eq{col: x.Value}
}
