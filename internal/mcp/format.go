package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

// ToSearchOutput converts a merged search response to the tool output.
func ToSearchOutput(r *protocol.SearchResponse) SearchOutput {
	out := SearchOutput{
		Query:             r.Query,
		TotalDocuments:    r.TotalDocuments,
		ReturnedDocuments: r.ReturnedDocuments,
		TotalHits:         r.TotalHits,
		Ignored:           r.Ignored,
		Results:           make([]SearchResult, 0, len(r.DocumentHits)),
		FailedShards:      failedShards(r.Shards),
	}
	for _, h := range r.DocumentHits {
		out.Results = append(out.Results, SearchResult{
			Shard:   h.Document.Shard,
			ID:      h.Document.ID,
			URL:     h.Document.URL,
			Hits:    h.NoOfHits,
			Missing: h.Missing,
		})
	}
	return out
}

// ToPatternOutput converts a merged pattern response to the tool output.
func ToPatternOutput(r *protocol.PatternResponse) PatternOutput {
	out := PatternOutput{
		Pattern:           r.Pattern,
		TotalDocuments:    r.TotalDocuments,
		ReturnedDocuments: r.ReturnedDocuments,
		Results:           make([]PatternResult, 0, len(r.Hits)),
		FailedShards:      failedShards(r.Shards),
	}
	for _, h := range r.Hits {
		out.Results = append(out.Results, PatternResult{
			Shard: h.Document.Shard,
			ID:    h.Document.ID,
			URL:   h.Document.URL,
			Words: h.MatchingWords,
		})
	}
	return out
}

// ToShardStatusOutput converts cluster health to the tool output.
func ToShardStatusOutput(h *protocol.ClusterHealth) ShardStatusOutput {
	out := ShardStatusOutput{
		Status:  h.Status,
		Healthy: h.Healthy,
		Total:   h.Total,
		Shards:  make([]ShardStatus, 0, len(h.Shards)),
	}
	for _, s := range h.Shards {
		out.Shards = append(out.Shards, ShardStatus{
			Shard:   s.Shard,
			Status:  s.Status,
			Kind:    s.Kind,
			Breaker: s.Breaker,
		})
	}
	return out
}

func failedShards(reports []protocol.ShardReport) []string {
	var failed []string
	for _, r := range reports {
		if !r.OK {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Shard, r.Kind))
		}
	}
	return failed
}

// FormatSearch renders search output as markdown.
func FormatSearch(out SearchOutput) string {
	if len(out.Results) == 0 {
		return withFailures(fmt.Sprintf("No documents found for \"%s\"", out.Query), out.FailedShards)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", out.Query)
	writeCount(&sb, out.ReturnedDocuments, out.TotalDocuments)
	if len(out.Ignored) > 0 {
		fmt.Fprintf(&sb, "Not in any document: %s\n\n", backticked(out.Ignored))
	}

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. **%s** (shard %s, doc %d): %d hit", i+1, r.URL, r.Shard, r.ID, r.Hits)
		if r.Hits != 1 {
			sb.WriteString("s")
		}
		if len(r.Missing) > 0 {
			fmt.Fprintf(&sb, ", missing %s", backticked(r.Missing))
		}
		sb.WriteString("\n")
	}

	return withFailures(sb.String(), out.FailedShards)
}

// FormatPattern renders pattern output as markdown.
func FormatPattern(out PatternOutput) string {
	if len(out.Results) == 0 {
		return withFailures(fmt.Sprintf("No words match \"%s\"", out.Pattern), out.FailedShards)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Pattern Results for \"%s\"\n\n", out.Pattern)
	writeCount(&sb, out.ReturnedDocuments, out.TotalDocuments)

	for i, r := range out.Results {
		fmt.Fprintf(&sb, "%d. **%s** (shard %s, doc %d): %s\n", i+1, r.URL, r.Shard, r.ID, backticked(r.Words))
	}

	return withFailures(sb.String(), out.FailedShards)
}

// FormatShardStatus renders cluster health as markdown.
func FormatShardStatus(out ShardStatusOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cluster is **%s**: %d of %d shards healthy\n\n", out.Status, out.Healthy, out.Total)
	for _, s := range out.Shards {
		fmt.Fprintf(&sb, "- %s: %s", s.Shard, s.Status)
		if s.Kind != "" {
			fmt.Fprintf(&sb, " (%s)", s.Kind)
		}
		if s.Breaker != "" {
			fmt.Fprintf(&sb, ", breaker %s", s.Breaker)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeCount(sb *strings.Builder, returned, total int) {
	fmt.Fprintf(sb, "Showing %d of %d document", returned, total)
	if total != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
}

func withFailures(s string, failed []string) string {
	if len(failed) == 0 {
		return s
	}
	return strings.TrimRight(s, "\n") + "\n\n> Partial result, no answer from: " + strings.Join(failed, ", ") + "\n"
}

func backticked(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = "`" + w + "`"
	}
	return strings.Join(quoted, ", ")
}

// clampLimit maps the tool's limit to a per-shard request limit.
// Zero means the default, negative is rejected by request validation.
func clampLimit(limit, defaultVal, max int) int {
	if limit == 0 {
		return defaultVal
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
