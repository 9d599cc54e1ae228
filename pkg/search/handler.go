package search

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/searchcore/pkg/querystring"
)

// Explainer renders compiled options into an executable description. The
// SQL plan layer provides the implementation; the handler only needs the
// rendered form.
type Explainer interface {
	Explain(opts *SearchOptions) (*Explanation, error)
}

// Explanation is the rendered form of one compiled search.
type Explanation struct {
	Plan []string `json:"plan"`
	SQL  string   `json:"sql"`
	Args []any    `json:"args"`
}

// Handler exposes search compilation over HTTP for inspection and
// debugging. The parent service mounts it next to its own search routes.
type Handler struct {
	compiler  *Compiler
	explainer Explainer
	log       zerolog.Logger
}

// NewHandler builds the explain handler.
func NewHandler(compiler *Compiler, explainer Explainer, log zerolog.Logger) *Handler {
	return &Handler{compiler: compiler, explainer: explainer, log: log}
}

// RegisterRoutes mounts the explain routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/explain", h.Explain)
	g.GET("/explain/:resourceType", h.Explain)
	g.GET("/explain/compartment/:compartmentType/:compartmentID/:resourceType", h.Explain)
}

type explainResponse struct {
	QueryID      string            `json:"queryId"`
	ResourceType string            `json:"resourceType,omitempty"`
	Options      optionsSummary    `json:"options"`
	Plan         []string          `json:"plan"`
	SQL          string            `json:"sql"`
	Args         []any             `json:"args"`
	Warnings     *OperationOutcome `json:"warnings,omitempty"`
}

type optionsSummary struct {
	MaxItemCount      int      `json:"maxItemCount"`
	IncludeCount      int      `json:"includeCount"`
	CountOnly         bool     `json:"countOnly"`
	Total             string   `json:"total"`
	ContinuationToken string   `json:"continuationToken,omitempty"`
	Expression        string   `json:"expression,omitempty"`
	Sort              []string `json:"sort,omitempty"`
}

// Explain compiles the request's query string and returns the resulting
// options, plan and SQL without executing anything.
func (h *Handler) Explain(c echo.Context) error {
	queryID := uuid.NewString()
	resourceType := c.Param("resourceType")
	compartmentType := c.Param("compartmentType")
	compartmentID := c.Param("compartmentID")

	pairs := querystring.Parse(c.Request().URL.RawQuery)
	params := make([]Parameter, 0, len(pairs))
	for _, p := range pairs {
		params = append(params, Parameter{Key: p.Key, Value: p.Value})
	}

	opts, err := h.compiler.Compile(compartmentType, compartmentID, resourceType, params)
	if err != nil {
		h.log.Warn().Err(err).Str("query_id", queryID).Str("resource_type", resourceType).Msg("search compilation failed")
		status, outcome := OutcomeForError(err)
		return c.JSON(status, outcome)
	}

	explanation, err := h.explainer.Explain(opts)
	if err != nil {
		h.log.Warn().Err(err).Str("query_id", queryID).Msg("plan rendering failed")
		status, outcome := OutcomeForError(err)
		return c.JSON(status, outcome)
	}

	summary := optionsSummary{
		MaxItemCount:      opts.MaxItemCount,
		IncludeCount:      opts.IncludeCount,
		CountOnly:         opts.CountOnly,
		Total:             opts.Total.String(),
		ContinuationToken: opts.ContinuationToken,
	}
	if opts.Expression != nil {
		summary.Expression = opts.Expression.String()
	}
	for _, s := range opts.Sort {
		summary.Sort = append(summary.Sort, s.Parameter.Name+" "+s.Order.String())
	}

	h.log.Debug().
		Str("query_id", queryID).
		Str("resource_type", resourceType).
		Int("plan_steps", len(explanation.Plan)).
		Int("unsupported_params", len(opts.UnsupportedParams)).
		Msg("search compiled")

	return c.JSON(http.StatusOK, explainResponse{
		QueryID:      queryID,
		ResourceType: resourceType,
		Options:      summary,
		Plan:         explanation.Plan,
		SQL:          explanation.SQL,
		Args:         explanation.Args,
		Warnings:     WarningsOutcome(opts),
	})
}
