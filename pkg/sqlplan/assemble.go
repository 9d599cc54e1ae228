package sqlplan

import "github.com/ehr/searchcore/pkg/search"

// Assemble lowers compiled options into the unordered logical plan. The
// result still needs Linearize before rendering.
//
// Predicates on parameters stored as resource-table columns (_id, _type,
// _lastUpdated) fold into the leading All step; other parameter predicates
// and compartment restrictions become Normal steps; include directives
// become Include steps in expression order. Count-only searches skip the
// page cap and the includes, which cannot affect a total.
func Assemble(opts *search.SearchOptions, d *GeneratorDispatcher) RootExpression {
	var (
		denormalized []search.Expression
		normals      []TableExpression
		includes     []TableExpression
	)

	for _, e := range flattenAnd(opts.Expression) {
		switch x := e.(type) {
		case *search.IncludeExpression:
			includes = append(includes, TableExpression{Kind: KindInclude, Generator: d.Include(), Include: x})
		case *search.SearchParameterExpression:
			if isDenormalizedParam(x.Parameter.Name) {
				denormalized = append(denormalized, e)
				continue
			}
			normals = append(normals, TableExpression{Kind: KindNormal, Generator: d.ForPredicate(e), Predicate: e})
		default:
			normals = append(normals, TableExpression{Kind: KindNormal, Generator: d.ForPredicate(e), Predicate: e})
		}
	}

	all := TableExpression{Kind: KindAll, Generator: d.All()}
	switch len(denormalized) {
	case 0:
	case 1:
		all.Predicate = denormalized[0]
	default:
		all.Predicate = search.And(denormalized...)
	}

	tables := make([]TableExpression, 0, len(normals)+len(includes)+2)
	tables = append(tables, all)
	tables = append(tables, normals...)
	if !opts.CountOnly {
		tables = append(tables, TableExpression{Kind: KindTop})
		tables = append(tables, includes...)
	}
	return RootExpression{Tables: tables}
}

func flattenAnd(e search.Expression) []search.Expression {
	if e == nil {
		return nil
	}
	if m, ok := e.(*search.MultiaryExpression); ok && m.Operator == search.MultiaryOpAnd {
		return m.Children
	}
	return []search.Expression{e}
}

// isDenormalizedParam reports whether the parameter lives as a column on
// the resource table instead of the search index.
func isDenormalizedParam(name string) bool {
	switch name {
	case "_id", search.ParamTypeName, "_lastUpdated":
		return true
	}
	return false
}
