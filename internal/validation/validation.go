// Package validation runs a suite of golden queries against a cluster
// and reports which ones return the documents they should.
//
// Suites are YAML files so they can change without a rebuild:
//
//	queries:
//	  - id: Q1
//	    query: apple banana
//	    expected: ["/corpus/10.txt"]
//	  - id: Q2
//	    pattern: "ch*"
//	    expected: ["12.txt"]
//	    top: 3
//	negative:
//	  - id: N1
//	    query: zzzz
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

// DefaultTop is how many leading documents an expectation may match in.
const DefaultTop = 10

// QuerySpec is one golden query. Exactly one of Query and Pattern is set.
type QuerySpec struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name,omitempty" json:"name,omitempty"`
	Query         string   `yaml:"query,omitempty" json:"query,omitempty"`
	Pattern       string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
	// Expected lists URL substrings; any of them in the top results passes.
	Expected []string `yaml:"expected,omitempty" json:"expected,omitempty"`
	Top      int      `yaml:"top,omitempty" json:"top,omitempty"`
}

// Suite is a loaded query file.
type Suite struct {
	Queries  []QuerySpec `yaml:"queries"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadSuite reads and checks a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite %s: %w", path, err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes a suite and rejects malformed entries.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}
	for _, q := range append(append([]QuerySpec{}, s.Queries...), s.Negative...) {
		if q.ID == "" {
			return nil, fmt.Errorf("suite entry %q has no id", q.Query+q.Pattern)
		}
		if (q.Query == "") == (q.Pattern == "") {
			return nil, fmt.Errorf("suite entry %s must set exactly one of query and pattern", q.ID)
		}
	}
	for _, q := range s.Queries {
		if len(q.Expected) == 0 {
			return nil, fmt.Errorf("suite entry %s lists no expected documents", q.ID)
		}
	}
	return &s, nil
}

// Searcher is the cluster surface the validator queries.
type Searcher interface {
	Search(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error)
	PatternSearch(ctx context.Context, req protocol.PatternRequest) (*protocol.PatternResponse, error)
}

// TestResult is the outcome of one query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration"`
	TopResults []string      `json:"top_results"`
	// MatchedAt is the 0-based rank of the first expected document, or -1.
	MatchedAt int    `json:"matched_at"`
	Degraded  bool   `json:"degraded,omitempty"`
	// Rejected is set when the request failed validation.
	Rejected bool   `json:"rejected,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is a whole suite run.
type Result struct {
	Timestamp time.Time    `json:"timestamp"`
	Queries   []TestResult `json:"queries"`
	Negative  []TestResult `json:"negative"`
	Pass      int          `json:"pass"`
	Total     int          `json:"total"`
	NegPass   int          `json:"negative_pass"`
	NegTotal  int          `json:"negative_total"`
}

// OK reports whether every query passed.
func (r *Result) OK() bool {
	return r.Pass == r.Total && r.NegPass == r.NegTotal
}

// Validator runs suites against a Searcher.
type Validator struct {
	searcher Searcher
}

// NewValidator creates a validator over s.
func NewValidator(s Searcher) *Validator {
	return &Validator{searcher: s}
}

// RunQuery executes one positive query.
func (v *Validator) RunQuery(ctx context.Context, q QuerySpec) TestResult {
	tr := v.run(ctx, q)
	if tr.Error != "" {
		return tr
	}
	tr.Passed, tr.MatchedAt = checkExpected(tr.TopResults, q.Expected)
	return tr
}

// RunNegative executes one query that must find nothing. A validation
// rejection also passes.
func (v *Validator) RunNegative(ctx context.Context, q QuerySpec) TestResult {
	tr := v.run(ctx, q)
	switch {
	case tr.Error != "":
		tr.Passed = tr.Rejected
	default:
		tr.Passed = len(tr.TopResults) == 0
	}
	return tr
}

func (v *Validator) run(ctx context.Context, q QuerySpec) TestResult {
	top := q.Top
	if top <= 0 {
		top = DefaultTop
	}
	tr := TestResult{Spec: q, MatchedAt: -1}
	start := time.Now()

	var (
		urls    []string
		reports []protocol.ShardReport
		err     error
	)
	if q.Pattern != "" {
		req := protocol.NewPatternRequest(q.Pattern)
		req.Limit, req.CaseSensitive = top, q.CaseSensitive
		var resp *protocol.PatternResponse
		if resp, err = v.searcher.PatternSearch(ctx, req); err == nil {
			for _, h := range resp.Hits {
				urls = append(urls, h.Document.URL)
			}
			reports = resp.Shards
		}
	} else {
		req := protocol.NewSearchRequest(q.Query)
		req.Limit, req.CaseSensitive, req.IncludeTimestamps = top, q.CaseSensitive, false
		var resp *protocol.SearchResponse
		if resp, err = v.searcher.Search(ctx, req); err == nil {
			for _, h := range resp.DocumentHits {
				urls = append(urls, h.Document.URL)
			}
			reports = resp.Shards
		}
	}
	tr.Duration = time.Since(start)

	if err != nil {
		tr.Error = err.Error()
		tr.Rejected = serrors.IsValidation(err)
		return tr
	}
	if len(urls) > top {
		urls = urls[:top]
	}
	tr.TopResults = urls
	for _, r := range reports {
		if !r.OK {
			tr.Degraded = true
		}
	}
	return tr
}

// RunAll executes the whole suite in order.
func (v *Validator) RunAll(ctx context.Context, s *Suite) *Result {
	res := &Result{Timestamp: time.Now().UTC()}
	for _, q := range s.Queries {
		tr := v.RunQuery(ctx, q)
		res.Queries = append(res.Queries, tr)
		res.Total++
		if tr.Passed {
			res.Pass++
		}
	}
	for _, q := range s.Negative {
		tr := v.RunNegative(ctx, q)
		res.Negative = append(res.Negative, tr)
		res.NegTotal++
		if tr.Passed {
			res.NegPass++
		}
	}
	return res
}

func checkExpected(results, expected []string) (bool, int) {
	for i, url := range results {
		for _, want := range expected {
			if strings.Contains(url, want) {
				return true, i
			}
		}
	}
	return false, -1
}
