package mcp

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query         string `json:"query" jsonschema:"whitespace separated words to look up"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum documents per shard, default 20"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match words exactly as written"`
}

// PatternInput is the input schema of the pattern_search tool.
type PatternInput struct {
	Pattern       string `json:"pattern" jsonschema:"word pattern; ? matches one character, * any run"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum documents per shard, default 20"`
	CaseSensitive bool   `json:"case_sensitive,omitempty" jsonschema:"match words exactly as written"`
}

// ShardStatusInput is the input schema of the shard_status tool (no parameters).
type ShardStatusInput struct{}

// SearchOutput is the structured result of the search tool.
type SearchOutput struct {
	Query             string         `json:"query"`
	TotalDocuments    int            `json:"total_documents"`
	ReturnedDocuments int            `json:"returned_documents"`
	TotalHits         int            `json:"total_hits"`
	Ignored           []string       `json:"ignored"`
	Results           []SearchResult `json:"results"`
	FailedShards      []string       `json:"failed_shards,omitempty" jsonschema:"shards that did not contribute"`
}

// SearchResult is one ranked document.
type SearchResult struct {
	Shard   string   `json:"shard"`
	ID      int      `json:"id"`
	URL     string   `json:"url"`
	Hits    int      `json:"hits"`
	Missing []string `json:"missing,omitempty" jsonschema:"query words absent from this document"`
}

// PatternOutput is the structured result of the pattern_search tool.
type PatternOutput struct {
	Pattern           string          `json:"pattern"`
	TotalDocuments    int             `json:"total_documents"`
	ReturnedDocuments int             `json:"returned_documents"`
	Results           []PatternResult `json:"results"`
	FailedShards      []string        `json:"failed_shards,omitempty"`
}

// PatternResult is one document with the words that matched the pattern.
type PatternResult struct {
	Shard string   `json:"shard"`
	ID    int      `json:"id"`
	URL   string   `json:"url"`
	Words []string `json:"words"`
}

// ShardStatusOutput is the structured result of the shard_status tool.
type ShardStatusOutput struct {
	Status  string        `json:"status" jsonschema:"ok, degraded or down"`
	Healthy int           `json:"healthy"`
	Total   int           `json:"total"`
	Shards  []ShardStatus `json:"shards"`
}

// ShardStatus describes one shard.
type ShardStatus struct {
	Shard   string `json:"shard"`
	Status  string `json:"status"`
	Kind    string `json:"kind,omitempty" jsonschema:"failure kind when the shard is down"`
	Breaker string `json:"breaker,omitempty" jsonschema:"circuit breaker state"`
}
