package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Reserved query keys the compiler consumes itself. Everything else flows
// through the accumulator and the expression parser.
const (
	paramFormat     = "_format"
	paramTotal      = "_total"
	paramCount      = "_count"
	paramSummary    = "_summary"
	paramSort       = "_sort"
	paramInclude    = "_include"
	paramRevInclude = "_revinclude"
)

// Config carries the tuning knobs the compiler snapshots at construction.
// The struct is copied in; later mutation by the caller has no effect.
type Config struct {
	// DefaultItemCount is the page size when the client sends no _count.
	DefaultItemCount int
	// MaxItemCount caps the client-requested page size.
	MaxItemCount int
	// IncludeCount caps the rows fanned out per include step.
	IncludeCount int
	// DefaultTotal applies when the request names no total policy and
	// carries no continuation token.
	DefaultTotal TotalType
}

// ExpressionParser parses a single search parameter or include directive.
// Implementations must be safe for concurrent use.
type ExpressionParser interface {
	Parse(resourceType, key, value string) (Expression, error)
	ParseInclude(resourceType, value string, reversed, iterate bool) (*IncludeExpression, error)
}

// Option customizes a Compiler.
type Option func(*Compiler)

// WithLogger routes soft-failure diagnostics to log. The compiler never
// logs on the happy path.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Compiler) { c.log = log }
}

// Compiler turns ordered request parameters into SearchOptions. It holds no
// per-request state and is safe for concurrent use.
type Compiler struct {
	directory ParamDirectory
	parser    ExpressionParser
	cfg       Config
	typeParam *ParamInfo
	log       zerolog.Logger
}

// NewCompiler builds a compiler over the given collaborators. The directory
// must define _type on the Resource base; the compiler synthesizes the
// leading resource-type constraint from it.
func NewCompiler(directory ParamDirectory, parser ExpressionParser, cfg Config, opts ...Option) (*Compiler, error) {
	if cfg.DefaultItemCount <= 0 || cfg.MaxItemCount <= 0 || cfg.IncludeCount <= 0 {
		return nil, fmt.Errorf("search: compiler config requires positive page sizes, got %+v", cfg)
	}
	if cfg.DefaultItemCount > cfg.MaxItemCount {
		return nil, fmt.Errorf("search: default page size %d exceeds the maximum %d", cfg.DefaultItemCount, cfg.MaxItemCount)
	}
	if cfg.DefaultTotal == TotalEstimate {
		return nil, fmt.Errorf("search: estimate is not a valid default total policy")
	}
	typeParam, err := directory.Lookup(ResourceWildcard, ParamTypeName)
	if err != nil {
		return nil, fmt.Errorf("search: directory does not define %s: %w", ParamTypeName, err)
	}
	c := &Compiler{
		directory: directory,
		parser:    parser,
		cfg:       cfg,
		typeParam: typeParam,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compile builds the SearchOptions for one request. compartmentType and
// compartmentID scope the search to a compartment instance when non-empty.
// resourceType may be empty for a whole-system search. params preserves the
// submission order of the query string; recognized pairs are consumed,
// unusable ones are collected on the result rather than failing the whole
// request.
func (c *Compiler) Compile(compartmentType, compartmentID, resourceType string, params []Parameter) (*SearchOptions, error) {
	options := &SearchOptions{
		IncludeCount:      c.cfg.IncludeCount,
		Sort:              []SortEntry{},
		UnsupportedParams: []Parameter{},
		UnsupportedSort:   []UnsupportedSort{},
	}

	var (
		seenToken bool
		seenTotal bool
		acc       accumulator
	)
	for _, p := range params {
		switch {
		case p.Key == ContinuationTokenParam:
			if seenToken {
				// The request mapping layer guarantees uniqueness; a second
				// occurrence is a defect upstream, not a client mistake.
				return nil, InvalidSearchOperationf("continuation token can only be specified once")
			}
			seenToken = true
			token, err := DecodeContinuationToken(p.Value)
			if err != nil {
				return nil, err
			}
			options.ContinuationToken = token
		case p.Key == paramFormat:
			// negotiated by the transport layer
		case p.Key == "" || p.Value == "":
			options.UnsupportedParams = append(options.UnsupportedParams, p)
		case strings.EqualFold(p.Key, paramTotal):
			total, ok := ParseTotalType(p.Value)
			if !ok {
				return nil, BadRequestf("'%s' is not a valid %s value; supported values are: %s", p.Value, paramTotal, supportedTotalValues)
			}
			if total == TotalEstimate {
				return nil, OperationNotSupportedf("%s=%s is not supported; supported values are: %s", paramTotal, p.Value, supportedTotalValues)
			}
			options.Total = total
			seenTotal = true
		default:
			if err := acc.add(p); err != nil {
				return nil, err
			}
		}
	}

	// Totals are expensive to recompute per page, so a continuation token
	// also suppresses the configured default.
	if !seenToken && !seenTotal {
		if c.cfg.DefaultTotal == TotalEstimate {
			return nil, OperationNotSupportedf("the configured default total policy 'estimate' is not supported; supported values are: %s", supportedTotalValues)
		}
		options.Total = c.cfg.DefaultTotal
	}

	if acc.count != nil {
		if *acc.count > c.cfg.MaxItemCount {
			return nil, BadRequestf("the requested _count %d exceeds the maximum page size of %d", *acc.count, c.cfg.MaxItemCount)
		}
		options.MaxItemCount = *acc.count
	} else {
		options.MaxItemCount = c.cfg.DefaultItemCount
	}

	options.CountOnly = strings.EqualFold(acc.summary, "count")

	var expressions []Expression

	baseType := ResourceWildcard
	if resourceType != "" {
		if !c.directory.KnownResourceType(resourceType) {
			return nil, ResourceNotSupportedf("resource type '%s' is not supported", resourceType)
		}
		baseType = resourceType
		expressions = append(expressions, SearchParameter(c.typeParam, NewString(StringOpEquals, FieldTokenCode, resourceType, false)))
	}

	for _, p := range acc.misc {
		if _, ok := iterateKey(p.Key); ok {
			continue
		}
		expr, err := c.parser.Parse(baseType, p.Key, p.Value)
		if err != nil {
			if IsParamNotSupported(err) {
				c.log.Debug().Str("parameter", p.Key).Str("resource_type", baseType).Msg("demoting unsupported search parameter")
				options.UnsupportedParams = append(options.UnsupportedParams, p)
				continue
			}
			return nil, err
		}
		expressions = append(expressions, expr)
	}

	for _, v := range acc.includes {
		inc, err := c.parser.ParseInclude(baseType, v, false, false)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, inc)
	}
	for _, v := range acc.revIncludes {
		inc, err := c.parser.ParseInclude(baseType, v, true, false)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, inc)
	}

	// Iterating includes carry their own source type as a value prefix; the
	// key spelling is matched case-insensitively wherever it appeared.
	for _, wantReversed := range []bool{false, true} {
		for _, p := range acc.misc {
			reversed, ok := iterateKey(p.Key)
			if !ok || reversed != wantReversed {
				continue
			}
			prefixType := baseType
			if p.Value != "*" {
				prefixType = p.Value
				if i := strings.Index(prefixType, ":"); i >= 0 {
					prefixType = prefixType[:i]
				}
				if prefixType != "" && !c.directory.KnownResourceType(prefixType) {
					return nil, ResourceNotSupportedf("resource type '%s' is not supported", prefixType)
				}
			}
			inc, err := c.parser.ParseInclude(prefixType, p.Value, reversed, true)
			if err != nil {
				return nil, err
			}
			expressions = append(expressions, inc)
		}
	}

	if compartmentType != "" {
		ct, ok := ParseCompartmentType(compartmentType)
		if !ok {
			return nil, InvalidSearchOperationf("compartment type '%s' is invalid", compartmentType)
		}
		if strings.TrimSpace(compartmentID) == "" {
			return nil, InvalidSearchOperationf("compartment id cannot be empty")
		}
		expressions = append(expressions, NewCompartment(ct, compartmentID))
	}

	switch len(expressions) {
	case 0:
	case 1:
		options.Expression = expressions[0]
	default:
		options.Expression = And(expressions...)
	}

	for _, key := range acc.sort {
		info, err := c.directory.Lookup(baseType, key.name)
		if err != nil {
			options.UnsupportedSort = append(options.UnsupportedSort, UnsupportedSort{
				Name:   key.name,
				Reason: fmt.Sprintf("'%s' is not a recognized search parameter for %s", key.name, baseType),
			})
			continue
		}
		if !info.Sortable {
			options.UnsupportedSort = append(options.UnsupportedSort, UnsupportedSort{
				Name:   key.name,
				Reason: fmt.Sprintf("sorting by '%s' is not supported", key.name),
			})
			continue
		}
		options.Sort = append(options.Sort, SortEntry{Parameter: info, Order: key.order})
	}

	return options, nil
}

// iterateKey reports whether key is one of the iterating include modifiers
// and whether it is the reversed form. Matching ignores case; the older
// :recurse spelling remains accepted alongside :iterate.
func iterateKey(key string) (reversed, ok bool) {
	switch strings.ToLower(key) {
	case "_include:iterate", "_include:recurse":
		return false, true
	case "_revinclude:iterate", "_revinclude:recurse":
		return true, true
	}
	return false, false
}

// accumulator buckets the non-reserved parameters while validating their
// syntax. Semantic checks stay in Compile.
type accumulator struct {
	count       *int
	summary     string
	sort        []sortKey
	includes    []string
	revIncludes []string
	misc        []Parameter
}

type sortKey struct {
	name  string
	order SortOrder
}

func (a *accumulator) add(p Parameter) error {
	switch p.Key {
	case paramCount:
		n, err := strconv.Atoi(p.Value)
		if err != nil || n < 1 {
			return BadRequestf("%s must be a positive integer, got '%s'", paramCount, p.Value)
		}
		a.count = &n
	case paramSummary:
		a.summary = p.Value
	case paramSort:
		a.sort = append(a.sort, parseSortKeys(p.Value)...)
	case paramInclude:
		a.includes = append(a.includes, p.Value)
	case paramRevInclude:
		a.revIncludes = append(a.revIncludes, p.Value)
	default:
		a.misc = append(a.misc, p)
	}
	return nil
}

// parseSortKeys splits a _sort value on commas; a leading dash selects
// descending order.
func parseSortKeys(value string) []sortKey {
	var keys []sortKey
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		k := sortKey{name: part}
		if strings.HasPrefix(part, "-") {
			k.name = part[1:]
			k.order = SortDescending
		}
		if k.name == "" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
