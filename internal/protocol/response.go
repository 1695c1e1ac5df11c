package protocol

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/store"
)

// Document is a document as sent over the wire. Shard is set by the
// coordinator, since document ids are only unique within one shard.
type Document struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	IndexTime    string `json:"indexTime,omitempty"`
	CreationTime string `json:"creationTime,omitempty"`
	Shard        string `json:"shard,omitempty"`
}

// DocumentHit is one ranked document of a term search.
type DocumentHit struct {
	Document Document `json:"document"`
	NoOfHits int      `json:"noOfHits"`
	Missing  []string `json:"missing"`
}

// ShardReport describes one shard's part in a coordinated answer.
type ShardReport struct {
	Shard    string  `json:"shard"`
	OK       bool    `json:"ok"`
	Kind     string  `json:"kind,omitempty"`
	Code     string  `json:"code,omitempty"`
	TimeUsed float64 `json:"timeUsed"`
}

// SearchResponse is the answer to a term search.
type SearchResponse struct {
	InstanceID        string        `json:"instanceId"`
	Query             []string      `json:"query"`
	TotalDocuments    int           `json:"totalDocuments"`
	ReturnedDocuments int           `json:"returnedDocuments"`
	IsTruncated       bool          `json:"isTruncated"`
	TotalHits         int           `json:"totalHits"`
	ReturnedHits      int           `json:"returnedHits"`
	DocumentHits      []DocumentHit `json:"documentHits"`
	Ignored           []string      `json:"ignored"`
	TimeUsed          float64       `json:"timeUsed"`
	Shards            []ShardReport `json:"shards,omitempty"`
}

// PatternHit is one ranked document of a pattern search.
type PatternHit struct {
	Document      Document `json:"document"`
	MatchingWords []string `json:"matchingWords"`
}

// PatternResponse is the answer to a pattern search.
type PatternResponse struct {
	InstanceID        string        `json:"instanceId"`
	Pattern           string        `json:"pattern"`
	TotalDocuments    int           `json:"totalDocuments"`
	ReturnedDocuments int           `json:"returnedDocuments"`
	IsTruncated       bool          `json:"isTruncated"`
	TotalHits         int           `json:"totalHits"`
	ReturnedHits      int           `json:"returnedHits"`
	TimeUsed          float64       `json:"timeUsed"`
	Hits              []PatternHit  `json:"hits"`
	Shards            []ShardReport `json:"shards,omitempty"`
}

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// HealthResponse is a shard liveness check answer.
type HealthResponse struct {
	InstanceID string    `json:"instanceId"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ShardHealth is one shard's entry in a cluster health report.
type ShardHealth struct {
	Shard      string  `json:"shard"`
	Status     string  `json:"status"`
	InstanceID string  `json:"instanceId,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Code       string  `json:"code,omitempty"`
	Breaker    string  `json:"breaker,omitempty"`
	TimeUsed   float64 `json:"timeUsed"`
}

// ClusterHealth aggregates the health of every configured shard.
type ClusterHealth struct {
	Status    string        `json:"status"`
	Healthy   int           `json:"healthy"`
	Total     int           `json:"total"`
	Shards    []ShardHealth `json:"shards"`
	Timestamp time.Time     `json:"timestamp"`
}

// WordCount is a vocabulary word with its occurrence total.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// StatsResponse reports the size of one shard's index.
type StatsResponse struct {
	InstanceID  string      `json:"instanceId"`
	Documents   int         `json:"documents"`
	Words       int         `json:"words"`
	Occurrences int         `json:"occurrences"`
	TopWords    []WordCount `json:"topWords"`
}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromDocument converts a stored document. Timestamps are dropped when
// includeTimestamps is false.
func FromDocument(d store.Document, includeTimestamps bool) Document {
	doc := Document{ID: d.ID, URL: d.URL}
	if includeTimestamps {
		doc.IndexTime = d.IndexTime
		doc.CreationTime = d.CreationTime
	}
	return doc
}

// FromResult converts a term search result.
func FromResult(instanceID string, r *search.Result, includeTimestamps bool) *SearchResponse {
	resp := &SearchResponse{
		InstanceID:        instanceID,
		Query:             nonNil(r.Query),
		TotalDocuments:    r.TotalDocuments,
		ReturnedDocuments: r.ReturnedDocuments(),
		IsTruncated:       r.IsTruncated(),
		TotalHits:         r.TotalHits,
		ReturnedHits:      r.ReturnedHits,
		DocumentHits:      make([]DocumentHit, 0, len(r.Hits)),
		Ignored:           nonNil(r.Ignored),
		TimeUsed:          Milliseconds(r.Elapsed),
	}
	for _, h := range r.Hits {
		resp.DocumentHits = append(resp.DocumentHits, DocumentHit{
			Document: FromDocument(h.Document, includeTimestamps),
			NoOfHits: h.Hits,
			Missing:  nonNil(h.Missing),
		})
	}
	return resp
}

// FromPatternResult converts a pattern search result.
func FromPatternResult(instanceID string, r *search.PatternResult) *PatternResponse {
	resp := &PatternResponse{
		InstanceID:        instanceID,
		Pattern:           r.Pattern,
		TotalDocuments:    r.TotalDocuments,
		ReturnedDocuments: r.ReturnedDocuments(),
		IsTruncated:       r.IsTruncated(),
		TotalHits:         r.TotalHits,
		ReturnedHits:      r.ReturnedHits,
		TimeUsed:          Milliseconds(r.Elapsed),
		Hits:              make([]PatternHit, 0, len(r.Hits)),
	}
	for _, h := range r.Hits {
		resp.Hits = append(resp.Hits, PatternHit{
			Document:      FromDocument(h.Document, true),
			MatchingWords: nonNil(h.MatchingWords),
		})
	}
	return resp
}

// FromStats converts index statistics.
func FromStats(instanceID string, st *store.Stats) *StatsResponse {
	resp := &StatsResponse{
		InstanceID:  instanceID,
		Documents:   st.Documents,
		Words:       st.Words,
		Occurrences: st.Occurrences,
		TopWords:    make([]WordCount, 0, len(st.TopWords)),
	}
	for _, wc := range st.TopWords {
		resp.TopWords = append(resp.TopWords, WordCount{Word: wc.Word, Count: wc.Count})
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Validate checks the internal consistency of a decoded response.
func (r *SearchResponse) Validate() error {
	if r.ReturnedDocuments != len(r.DocumentHits) {
		return fmt.Errorf("returnedDocuments is %d but %d hits were sent", r.ReturnedDocuments, len(r.DocumentHits))
	}
	if r.ReturnedDocuments > r.TotalDocuments {
		return fmt.Errorf("returnedDocuments %d exceeds totalDocuments %d", r.ReturnedDocuments, r.TotalDocuments)
	}
	for _, h := range r.DocumentHits {
		if h.NoOfHits < 1 {
			return fmt.Errorf("document %d has %d hits", h.Document.ID, h.NoOfHits)
		}
	}
	return nil
}

// Validate checks the internal consistency of a decoded response.
func (r *PatternResponse) Validate() error {
	if r.ReturnedDocuments != len(r.Hits) {
		return fmt.Errorf("returnedDocuments is %d but %d hits were sent", r.ReturnedDocuments, len(r.Hits))
	}
	if r.ReturnedDocuments > r.TotalDocuments {
		return fmt.Errorf("returnedDocuments %d exceeds totalDocuments %d", r.ReturnedDocuments, r.TotalDocuments)
	}
	for _, h := range r.Hits {
		if len(h.MatchingWords) == 0 {
			return fmt.Errorf("document %d has no matching words", h.Document.ID)
		}
	}
	return nil
}

// Validate checks that a health answer carries a status.
func (r *HealthResponse) Validate() error {
	if r.Status == "" {
		return fmt.Errorf("health response has no status")
	}
	return nil
}

// Validate checks that statistics are non-negative.
func (r *StatsResponse) Validate() error {
	if r.Documents < 0 || r.Words < 0 || r.Occurrences < 0 {
		return fmt.Errorf("negative statistics")
	}
	return nil
}
