package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/shardsearch/internal/store"
)

func TestCompilePattern_WildcardSemantics(t *testing.T) {
	tests := []struct {
		pattern string
		word    string
		match   bool
	}{
		{"t?st", "test", true},
		{"t?st", "tast", true},
		{"t?st", "toast", false},
		{"t?st", "tst", false},
		{"te*", "test", true},
		{"te*", "testing", true},
		{"te*", "te", true},
		{"te*", "ate", false},
		{"a.c", "abc", false},
		{"a.c", "a.c", true},
		{"(x)+", "(x)+", true},
		{"*", "", true},
		{"?", "é", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.word, func(t *testing.T) {
			re, err := store.CompilePattern(tt.pattern, true)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.word))
		})
	}
}

func TestCompilePattern_CaseInsensitive(t *testing.T) {
	re, err := store.CompilePattern("TE*", false)
	require.NoError(t, err)
	assert.True(t, re.MatchString("testing"))

	re, err = store.CompilePattern("TE*", true)
	require.NoError(t, err)
	assert.False(t, re.MatchString("testing"))
}

func TestCompilePattern_Flags(t *testing.T) {
	// Given: both case modes
	insensitive, err := store.CompilePattern("ä?*", false)
	require.NoError(t, err)
	sensitive, err := store.CompilePattern("ä?*", true)
	require.NoError(t, err)

	// Then: the flags lead the expression and wildcards span newlines
	assert.Equal(t, "(?is)^ä..*$", insensitive.String())
	assert.Equal(t, "(?s)^ä..*$", sensitive.String())
	assert.True(t, sensitive.MatchString("ä\nb\nc"))

	// And: case folding is Unicode-aware
	assert.True(t, insensitive.MatchString("ÄPFEL"))
	assert.False(t, sensitive.MatchString("ÄPFEL"))
}

func TestIsWildcard(t *testing.T) {
	assert.True(t, store.IsWildcard("t?st"))
	assert.True(t, store.IsWildcard("te*"))
	assert.False(t, store.IsWildcard("hello"))
	assert.False(t, store.IsWildcard(""))
}

func TestToGlob(t *testing.T) {
	assert.Equal(t, "t?st*", store.ToGlob("t?st*"))
	assert.Equal(t, "a[[]1[]]", store.ToGlob("a[1]"))
}

func TestToLike(t *testing.T) {
	assert.Equal(t, "t_st%", store.ToLike("t?st*"))
	assert.Equal(t, `50\%\_off`, store.ToLike("50%_off"))
	assert.Equal(t, `a\\b`, store.ToLike(`a\b`))
}
