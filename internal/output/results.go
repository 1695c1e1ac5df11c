package output

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

// SearchResponse renders a term search result, one document per line.
func (w *Writer) SearchResponse(r *protocol.SearchResponse) {
	w.printf("%s %s\n", w.styles.Header.Render("Query:"), strings.Join(r.Query, " "))
	w.summary(r.ReturnedDocuments, r.TotalDocuments, r.TimeUsed)
	if len(r.Ignored) > 0 {
		w.printf("%s %s\n", w.styles.Label.Render("not found:"), strings.Join(r.Ignored, ", "))
	}
	w.Newline()

	for i, h := range r.DocumentHits {
		w.printf("%3d. %s %s %s", i+1,
			w.styles.Count.Render(fmt.Sprintf("%4d", h.NoOfHits)),
			h.Document.URL,
			w.styles.Dim.Render(docRef(h.Document)))
		if len(h.Missing) > 0 {
			w.printf(" %s", w.styles.Label.Render("missing: "+strings.Join(h.Missing, ", ")))
		}
		w.Newline()
	}
	w.shardReport(r.Shards)
}

// PatternResponse renders a pattern search result with the matched words.
func (w *Writer) PatternResponse(r *protocol.PatternResponse) {
	w.printf("%s %s\n", w.styles.Header.Render("Pattern:"), r.Pattern)
	w.summary(r.ReturnedDocuments, r.TotalDocuments, r.TimeUsed)
	w.Newline()

	for i, h := range r.Hits {
		w.printf("%3d. %s %s\n     %s\n", i+1, h.Document.URL,
			w.styles.Dim.Render(docRef(h.Document)),
			strings.Join(h.MatchingWords, " "))
	}
	w.shardReport(r.Shards)
}

// Stats renders index statistics.
func (w *Writer) Stats(r *protocol.StatsResponse) {
	w.printf("%s %s\n", w.styles.Header.Render("Index:"), r.InstanceID)
	w.printf("%s %d\n", w.styles.Label.Render("documents:  "), r.Documents)
	w.printf("%s %d\n", w.styles.Label.Render("words:      "), r.Words)
	w.printf("%s %d\n", w.styles.Label.Render("occurrences:"), r.Occurrences)
	if len(r.TopWords) == 0 {
		return
	}
	w.Newline()
	w.printf("%s\n", w.styles.Header.Render("Most frequent words"))
	for i, wc := range r.TopWords {
		w.printf("%3d. %-24s %s\n", i+1, wc.Word, w.styles.Count.Render(fmt.Sprint(wc.Count)))
	}
}

// ClusterHealth renders per-shard health.
func (w *Writer) ClusterHealth(h *protocol.ClusterHealth) {
	w.printf("%s %s (%d/%d healthy)\n", w.styles.Header.Render("Cluster:"), w.status(h.Status), h.Healthy, h.Total)
	for _, s := range h.Shards {
		w.printf("  %-16s %s", s.Shard, w.status(s.Status))
		if s.Kind != "" {
			w.printf(" %s", w.styles.Label.Render(s.Kind))
		}
		if s.Breaker != "" {
			w.printf(" %s", w.styles.Dim.Render("breaker "+s.Breaker))
		}
		w.Newline()
	}
}

func (w *Writer) status(s string) string {
	switch s {
	case protocol.StatusOK:
		return w.styles.Success.Render(s)
	case protocol.StatusDegraded:
		return w.styles.Warning.Render(s)
	default:
		return w.styles.Error.Render(s)
	}
}

func (w *Writer) summary(returned, total int, ms float64) {
	line := fmt.Sprintf("%d of %d documents in %.1fms", returned, total, ms)
	if returned < total {
		line += " (truncated)"
	}
	w.printf("%s\n", w.styles.Label.Render(line))
}

func (w *Writer) shardReport(reports []protocol.ShardReport) {
	for _, r := range reports {
		if !r.OK {
			w.Warningf("shard %s did not answer: %s", r.Shard, r.Kind)
		}
	}
}

func docRef(d protocol.Document) string {
	if d.Shard != "" {
		return fmt.Sprintf("[%s/%d]", d.Shard, d.ID)
	}
	return fmt.Sprintf("[%d]", d.ID)
}
