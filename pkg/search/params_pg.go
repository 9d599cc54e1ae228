package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// querier is the slice of a pgx pool the directory loader needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// LoadDirectoryPG hydrates a Directory from the search_parameter table.
// Each row carries one definition with its base resource types; a
// definition based on several types is registered once per type. The
// directory starts from the shipped defaults so reserved parameters such as
// _id and _type are always present.
func LoadDirectoryPG(ctx context.Context, q querier) (*Directory, error) {
	rows, err := q.Query(ctx, `
		SELECT code, base, type, target, sortable
		FROM search_parameter
		WHERE status = 'active'
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query search parameters: %w", err)
	}
	defer rows.Close()

	d := DefaultDirectory()
	for rows.Next() {
		var (
			code, typ    string
			base, target []string
			sortable     bool
		)
		if err := rows.Scan(&code, &base, &typ, &target, &sortable); err != nil {
			return nil, fmt.Errorf("scan search parameter: %w", err)
		}
		paramType, ok := ParseParamType(typ)
		if !ok {
			return nil, fmt.Errorf("search parameter %q has unknown type %q", code, typ)
		}
		for _, resourceType := range base {
			d.RegisterType(resourceType)
			d.Register(resourceType, ParamInfo{
				Name:        code,
				Type:        paramType,
				Sortable:    sortable,
				TargetTypes: target,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search parameters: %w", err)
	}
	return d, nil
}
