package output

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/protocol"
)

func TestNew_BufferIsPlain(t *testing.T) {
	// Given: a non-terminal destination
	buf := &bytes.Buffer{}

	// When
	New(buf).Success("index ready")

	// Then: no escape sequences are written
	assert.Equal(t, "✓ index ready\n", buf.String())
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTTY(f))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestWriter_SearchResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithStyles(buf, NoColorStyles())

	// Given: a truncated merged result with a failed shard
	w.SearchResponse(&protocol.SearchResponse{
		Query:             []string{"apple", "durian"},
		TotalDocuments:    3,
		ReturnedDocuments: 1,
		Ignored:           []string{"durian"},
		TimeUsed:          1.25,
		DocumentHits: []protocol.DocumentHit{{
			Document: protocol.Document{ID: 10, URL: "/corpus/10.txt", Shard: "a"},
			NoOfHits: 3,
			Missing:  []string{},
		}},
		Shards: []protocol.ShardReport{{Shard: "a", OK: true}, {Shard: "b", Kind: "timeout"}},
	})

	// Then
	out := buf.String()
	assert.Contains(t, out, "Query: apple durian\n")
	assert.Contains(t, out, "1 of 3 documents in 1.2ms (truncated)\n")
	assert.Contains(t, out, "not found: durian\n")
	assert.Contains(t, out, "  1.    3 /corpus/10.txt [a/10]\n")
	assert.Contains(t, out, "! shard b did not answer: timeout\n")
}

func TestWriter_PatternResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithStyles(buf, NoColorStyles())

	w.PatternResponse(&protocol.PatternResponse{
		Pattern:           "te?t",
		TotalDocuments:    1,
		ReturnedDocuments: 1,
		Hits: []protocol.PatternHit{{
			Document:      protocol.Document{ID: 2, URL: "/mail/15.txt"},
			MatchingWords: []string{"test", "Test"},
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "Pattern: te?t\n")
	assert.Contains(t, out, "/mail/15.txt [2]\n     test Test\n")
	assert.NotContains(t, out, "truncated")
}

func TestWriter_StatsAndHealth(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithStyles(buf, NoColorStyles())

	w.Stats(&protocol.StatsResponse{
		InstanceID: "s1", Documents: 3, Words: 3, Occurrences: 7,
		TopWords: []protocol.WordCount{{Word: "apple", Count: 4}},
	})
	w.ClusterHealth(&protocol.ClusterHealth{
		Status: protocol.StatusDegraded, Healthy: 1, Total: 2,
		Shards: []protocol.ShardHealth{
			{Shard: "a", Status: protocol.StatusOK, Breaker: "closed"},
			{Shard: "b", Status: protocol.StatusDown, Kind: "unavailable", Breaker: "open"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "occurrences: 7\n")
	assert.Contains(t, out, "  1. apple                    4\n")
	assert.Contains(t, out, "Cluster: degraded (1/2 healthy)\n")
	assert.Contains(t, out, "unavailable breaker open\n")
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, New(buf).JSON(map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
