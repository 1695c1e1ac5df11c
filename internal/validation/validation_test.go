package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/coordinator"
	"github.com/Aman-CERP/shardsearch/internal/search"
	"github.com/Aman-CERP/shardsearch/internal/shard"
	"github.com/Aman-CERP/shardsearch/internal/store/storetest"
)

const suiteYAML = `
queries:
  - id: Q1
    name: apple ranks doc 10 first
    query: apple
    expected: ["/corpus/10.txt"]
    top: 1
  - id: Q2
    pattern: "CH*"
    expected: ["12.txt"]
  - id: Q3
    query: banana
    expected: ["/corpus/10.txt"]
negative:
  - id: N1
    query: durian
  - id: N2
    pattern: "   "
  - id: N3
    query: cherry
  - id: N4
    pattern: "a b"
`

func newValidator(t *testing.T) *Validator {
	t.Helper()
	e, err := search.NewEngine(storetest.NewSQLite(t, storetest.Fruit()))
	require.NoError(t, err)
	c, err := coordinator.New([]shard.Client{shard.NewLocalClient("a", e)})
	require.NoError(t, err)
	return NewValidator(c)
}

func TestRunAll(t *testing.T) {
	// Given: a suite over the apple/banana index
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suiteYAML), 0o644))
	suite, err := LoadSuite(path)
	require.NoError(t, err)

	// When
	res := newValidator(t).RunAll(context.Background(), suite)

	// Then: banana lives only in doc 11, cherry is found by N3
	require.Len(t, res.Queries, 3)
	assert.True(t, res.Queries[0].Passed)
	assert.Equal(t, 0, res.Queries[0].MatchedAt)
	assert.Equal(t, []string{"/corpus/10.txt"}, res.Queries[0].TopResults)
	assert.True(t, res.Queries[1].Passed, "pattern search is case-insensitive by default")
	assert.False(t, res.Queries[2].Passed)
	assert.Equal(t, -1, res.Queries[2].MatchedAt)

	require.Len(t, res.Negative, 4)
	assert.True(t, res.Negative[0].Passed)
	assert.True(t, res.Negative[1].Passed)
	assert.True(t, res.Negative[1].Rejected)
	assert.False(t, res.Negative[2].Passed)
	assert.True(t, res.Negative[3].Passed, "a pattern with a space matches no word")
	assert.False(t, res.Negative[3].Rejected)

	assert.Equal(t, 2, res.Pass)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.NegPass)
	assert.False(t, res.OK())
}

func TestParseSuite_RejectsMalformedEntries(t *testing.T) {
	tests := map[string]string{
		"missing id":     "queries: [{query: a, expected: [x]}]",
		"both kinds":     "queries: [{id: Q, query: a, pattern: b*, expected: [x]}]",
		"neither kind":   "negative: [{id: N}]",
		"no expectation": "queries: [{id: Q, query: a}]",
		"not a suite":    "queries: 7",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSuite([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadSuite_MissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
