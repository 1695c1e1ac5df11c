package logging

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultLogDir returns the default log directory (~/.shardsearch/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shardsearch", "logs")
	}
	return filepath.Join(home, ".shardsearch", "logs")
}

// DefaultLogPath returns the log file for a component, e.g.
// ~/.shardsearch/logs/shard-shard-1.log.
func DefaultLogPath(component string) string {
	name := sanitize(component)
	if name == "" {
		name = "shardsearch"
	}
	return filepath.Join(DefaultLogDir(), name+".log")
}

// sanitize keeps file names portable when component carries an instance id.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
