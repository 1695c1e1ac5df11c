package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_NamesBinaryAndPlatform(t *testing.T) {
	// Given: a development build
	// When
	s := String()

	// Then
	assert.Contains(t, s, "shardsearch "+Version)
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
	assert.Contains(t, s, "commit "+Commit)
}

func TestGet_ReflectsLinkerOverrides(t *testing.T) {
	// Given: values the release build would inject
	oldV, oldC := Version, Commit
	Version, Commit = "v1.4.0", "abc1234"
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	// When
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	// Then: the JSON form carries them
	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "v1.4.0", got["version"])
	assert.Equal(t, "abc1234", got["commit"])
	assert.Equal(t, runtime.Version(), got["goVersion"])
	assert.Equal(t, "shardsearch/v1.4.0", UserAgent())
}
