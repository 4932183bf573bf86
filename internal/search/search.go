// Package search sharpens the web research around a meeting: it rewrites
// a raw query into better variants and scores the results that come back,
// both through the shared invocation pipeline. The web search itself is a
// port; the enhancer composes around whatever implementation is plugged
// in.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/llm"
	"github.com/salescoach/advisor/internal/security"
)

// defaultResultLimit bounds how many results a composite search fetches
// when the caller does not say.
const defaultResultLimit = 3

// Result is one web search hit as returned by a Searcher.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Searcher fetches raw web results. Implementations live outside this
// module; the enhancer works without one for everything except the
// composite search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// OptimizeInput is a raw query plus the research context around it.
type OptimizeInput struct {
	Query    string `json:"query"`
	Industry string `json:"industry,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
}

// OptimizedQuery is one rewritten query variant.
type OptimizedQuery struct {
	Query               string `json:"query"`
	Reason              string `json:"reason"`
	ExpectedImprovement string `json:"expected_improvement"`
}

// Optimization is the outcome of a query optimization call.
type Optimization struct {
	OptimizedQueries []OptimizedQuery  `json:"optimized_queries"`
	SearchStrategy   string            `json:"search_strategy"`
	UsedCache        bool              `json:"used_cache"`
	Usage            domain.TokenUsage `json:"usage"`
}

// QualityScore grades one search result on a 0 to 1 scale per dimension.
type QualityScore struct {
	URL                    string   `json:"url"`
	ReliabilityScore       float64  `json:"reliability_score"`
	RelevanceScore         float64  `json:"relevance_score"`
	FreshnessScore         float64  `json:"freshness_score"`
	OverallScore           float64  `json:"overall_score"`
	Reasoning              string   `json:"reasoning"`
	ImprovementSuggestions []string `json:"improvement_suggestions,omitempty"`
}

// Assessment is the outcome of a result quality assessment call.
type Assessment struct {
	QualityScores     []QualityScore    `json:"quality_scores"`
	OverallAssessment string            `json:"overall_assessment"`
	UsedCache         bool              `json:"used_cache"`
	Usage             domain.TokenUsage `json:"usage"`
}

// EnhancedInput drives the composite optimize-search-assess flow.
type EnhancedInput struct {
	Query    string `json:"query"`
	Industry string `json:"industry,omitempty"`
	Purpose  string `json:"purpose,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Enhancement is the composite outcome: the query actually searched, the
// raw results, and the two pipeline products around them.
type Enhancement struct {
	OriginalQuery string            `json:"original_query"`
	SearchedQuery string            `json:"searched_query"`
	Optimization  *Optimization     `json:"optimization"`
	Results       []Result          `json:"results"`
	Assessment    *Assessment       `json:"assessment,omitempty"`
	Usage         domain.TokenUsage `json:"usage"`
}

// Enhancer runs both enhancement operations over a shared invoker.
type Enhancer struct {
	invoker  *llm.Invoker
	searcher Searcher
	logger   *slog.Logger
	optimize *promptSection
	assess   *promptSection
}

// Option configures an Enhancer.
type Option func(*Enhancer)

// WithLogger sets the enhancer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enhancer) {
		e.logger = logger
	}
}

// WithSearcher plugs in a web search implementation, enabling the
// composite search endpoint.
func WithSearcher(s Searcher) Option {
	return func(e *Enhancer) {
		e.searcher = s
	}
}

// NewEnhancer loads both prompt sections up front so a broken template
// fails at startup, not on the first request.
func NewEnhancer(invoker *llm.Invoker, opts ...Option) (*Enhancer, error) {
	optimize, assess, err := loadPromptSections()
	if err != nil {
		return nil, err
	}
	e := &Enhancer{
		invoker:  invoker,
		logger:   slog.Default(),
		optimize: optimize,
		assess:   assess,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OptimizeQuery rewrites a raw query into up to three sharper variants
// with a strategy note. Runs in speed mode.
func (e *Enhancer) OptimizeQuery(ctx context.Context, tenantID, userID string, in OptimizeInput) (*Optimization, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, domain.ErrPromptRejected("query is required")
	}

	prompt, err := e.optimize.render(map[string]string{
		"Query":    security.EscapeForTemplate(in.Query),
		"Industry": security.EscapeForTemplate(orGeneral(in.Industry)),
		"Purpose":  security.EscapeForTemplate(orGeneral(in.Purpose)),
	})
	if err != nil {
		return nil, err
	}

	result, err := e.invoker.Invoke(ctx, tenantID, userID, domain.PromptRequest{
		RawText:      prompt,
		Mode:         domain.ModeSpeed,
		OutputSchema: e.optimize.schema,
	})
	if err != nil {
		return nil, err
	}

	var opt Optimization
	if err := json.Unmarshal(result.Response, &opt); err != nil {
		return nil, domain.ErrOutputSchema("decode optimization response: %v", err)
	}
	opt.UsedCache = result.UsedCache
	opt.Usage = result.Usage
	return &opt, nil
}

// AssessQuality scores a set of search results against the query that
// produced them. Runs in deep mode.
func (e *Enhancer) AssessQuality(ctx context.Context, tenantID, userID, query string, results []Result) (*Assessment, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrPromptRejected("query is required")
	}
	if len(results) == 0 {
		return nil, domain.ErrPromptRejected("at least one result is required")
	}

	prompt, err := e.assess.render(map[string]string{
		"Query":   security.EscapeForTemplate(query),
		"Results": describeResults(results),
	})
	if err != nil {
		return nil, err
	}

	result, err := e.invoker.Invoke(ctx, tenantID, userID, domain.PromptRequest{
		RawText:      prompt,
		Mode:         domain.ModeDeep,
		OutputSchema: e.assess.schema,
	})
	if err != nil {
		return nil, err
	}

	var assessment Assessment
	if err := json.Unmarshal(result.Response, &assessment); err != nil {
		return nil, domain.ErrOutputSchema("decode assessment response: %v", err)
	}
	assessment.UsedCache = result.UsedCache
	assessment.Usage = result.Usage
	return &assessment, nil
}

// EnhancedSearch runs the full flow: optimize the query, search with the
// best variant, then assess what came back. Search and assessment
// failures degrade the response instead of failing it; the optimization
// the caller paid tokens for always comes back.
func (e *Enhancer) EnhancedSearch(ctx context.Context, tenantID, userID string, in EnhancedInput) (*Enhancement, error) {
	if e.searcher == nil {
		return nil, domain.ErrConfiguration("no web search provider configured")
	}

	opt, err := e.OptimizeQuery(ctx, tenantID, userID, OptimizeInput{
		Query:    in.Query,
		Industry: in.Industry,
		Purpose:  in.Purpose,
	})
	if err != nil {
		return nil, err
	}

	query := in.Query
	if len(opt.OptimizedQueries) > 0 {
		query = opt.OptimizedQueries[0].Query
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}

	enhancement := &Enhancement{
		OriginalQuery: in.Query,
		SearchedQuery: query,
		Optimization:  opt,
		Results:       []Result{},
		Usage:         opt.Usage,
	}

	results, err := e.searcher.Search(ctx, query, limit)
	if err != nil {
		e.logger.Error("web search failed",
			slog.String("tenant_id", tenantID),
			slog.String("query", query),
			slog.String("error", err.Error()))
		return enhancement, nil
	}
	enhancement.Results = results
	if len(results) == 0 {
		return enhancement, nil
	}

	assessment, err := e.AssessQuality(ctx, tenantID, userID, query, results)
	if err != nil {
		e.logger.Error("result assessment failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return enhancement, nil
	}
	enhancement.Assessment = assessment
	enhancement.Usage = sumUsage(opt.Usage, assessment.Usage)
	return enhancement, nil
}

// describeResults flattens results into the numbered plain-text block the
// assessment template expects.
func describeResults(results []Result) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   url: %s\n",
			i+1, security.EscapeForTemplate(r.Title), security.EscapeForTemplate(r.URL))
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   snippet: %s\n", security.EscapeForTemplate(r.Snippet))
		}
		if r.Source != "" {
			fmt.Fprintf(&sb, "   source: %s\n", security.EscapeForTemplate(r.Source))
		}
		if r.PublishedAt != "" {
			fmt.Fprintf(&sb, "   published: %s\n", security.EscapeForTemplate(r.PublishedAt))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sumUsage(a, b domain.TokenUsage) domain.TokenUsage {
	return domain.TokenUsage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
		TotalTokens:  a.TotalTokens + b.TotalTokens,
	}
}

func orGeneral(s string) string {
	if strings.TrimSpace(s) == "" {
		return "general"
	}
	return s
}
