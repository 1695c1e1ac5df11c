// Package protocol defines the JSON wire format shared by shard and
// coordinator services, and the conversion from engine results.
package protocol

import (
	"net/url"
	"strconv"
	"strings"

	serrors "github.com/Aman-CERP/shardsearch/internal/errors"
)

// DefaultLimit is the page size used when a request names none.
const DefaultLimit = 20

// SearchRequest is a term query.
type SearchRequest struct {
	// Query holds space-separated terms.
	Query             string
	CaseSensitive     bool
	Limit             int // 0 means unlimited
	IncludeTimestamps bool
}

// NewSearchRequest returns a request with the service defaults.
func NewSearchRequest(query string) SearchRequest {
	return SearchRequest{Query: query, Limit: DefaultLimit, IncludeTimestamps: true}
}

// Terms splits the query into its terms.
func (r SearchRequest) Terms() []string {
	return strings.Fields(r.Query)
}

// Validate rejects requests that must never reach an engine.
func (r SearchRequest) Validate() error {
	if len(r.Terms()) == 0 {
		return serrors.ValidationError(serrors.ErrCodeQueryEmpty, "query parameter is required")
	}
	if r.Limit < 0 {
		return serrors.ValidationError(serrors.ErrCodeInvalidLimit, "limit must not be negative")
	}
	return nil
}

// Values encodes the request as query parameters.
func (r SearchRequest) Values() url.Values {
	v := url.Values{}
	v.Set("query", r.Query)
	v.Set("caseSensitive", strconv.FormatBool(r.CaseSensitive))
	v.Set("limit", formatLimit(r.Limit))
	v.Set("includeTimestamps", strconv.FormatBool(r.IncludeTimestamps))
	return v
}

// ParseSearchRequest reads a request from query parameters, applying
// defaults for absent ones. The result is validated.
func ParseSearchRequest(v url.Values) (SearchRequest, error) {
	req := NewSearchRequest(v.Get("query"))

	var err error
	if req.CaseSensitive, err = parseBool(v, "caseSensitive", false); err != nil {
		return req, err
	}
	if req.IncludeTimestamps, err = parseBool(v, "includeTimestamps", true); err != nil {
		return req, err
	}
	if req.Limit, err = parseLimit(v); err != nil {
		return req, err
	}
	return req, req.Validate()
}

// PatternRequest is a wildcard query.
type PatternRequest struct {
	Pattern       string
	CaseSensitive bool
	Limit         int // 0 means unlimited
}

// NewPatternRequest returns a request with the service defaults.
func NewPatternRequest(pattern string) PatternRequest {
	return PatternRequest{Pattern: pattern, Limit: DefaultLimit}
}

// Validate rejects requests that must never reach an engine. Only a blank
// pattern is an error; one that no word can match, such as one holding a
// space, simply finds nothing.
func (r PatternRequest) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return serrors.ValidationError(serrors.ErrCodePatternEmpty, "pattern parameter is required")
	}
	if r.Limit < 0 {
		return serrors.ValidationError(serrors.ErrCodeInvalidLimit, "limit must not be negative")
	}
	return nil
}

// Values encodes the request as query parameters.
func (r PatternRequest) Values() url.Values {
	v := url.Values{}
	v.Set("pattern", r.Pattern)
	v.Set("caseSensitive", strconv.FormatBool(r.CaseSensitive))
	v.Set("limit", formatLimit(r.Limit))
	return v
}

// ParsePatternRequest reads a request from query parameters, applying
// defaults for absent ones. The result is validated.
func ParsePatternRequest(v url.Values) (PatternRequest, error) {
	req := NewPatternRequest(v.Get("pattern"))

	var err error
	if req.CaseSensitive, err = parseBool(v, "caseSensitive", false); err != nil {
		return req, err
	}
	if req.Limit, err = parseLimit(v); err != nil {
		return req, err
	}
	return req, req.Validate()
}

// ParseLimit interprets a limit string: empty means DefaultLimit, "all"
// or "0" mean unlimited (0).
func ParseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return DefaultLimit, nil
	case strings.EqualFold(s, "all"):
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, serrors.ValidationError(serrors.ErrCodeInvalidLimit, "limit must be a number or \"all\"")
	}
	if n < 0 {
		return 0, serrors.ValidationError(serrors.ErrCodeInvalidLimit, "limit must not be negative")
	}
	return n, nil
}

func parseLimit(v url.Values) (int, error) {
	return ParseLimit(v.Get("limit"))
}

func formatLimit(limit int) string {
	if limit <= 0 {
		return "all"
	}
	return strconv.Itoa(limit)
}

func parseBool(v url.Values, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, serrors.ValidationError(serrors.ErrCodeInvalidInput, key+" must be true or false")
	}
	return b, nil
}
