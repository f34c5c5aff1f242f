package nanoid

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Lowercase alphanumeric alphabet, safe in URLs and Redis keys.
	Lowercase = "0123456789abcdefghijklmnopqrstuvwxyz"
	// PrimaryKeySize length of generated identifiers, without prefix.
	PrimaryKeySize = 16
)

func getSize(l ...int) int {
	if len(l) > 0 && l[0] > 0 {
		return l[0]
	}
	return PrimaryKeySize
}

// Must generate optional length nanoid with the default alphabet
func Must(l ...int) string {
	return gonanoid.Must(getSize(l...))
}

// Lower generate optional length lowercase nanoid
func Lower(l ...int) string {
	return gonanoid.MustGenerate(Lowercase, getSize(l...))
}

// PrimaryKey returns a generator of prefixed identifiers, e.g. "bat_x1y2..."
func PrimaryKey(prefix string, l ...int) func() string {
	size := getSize(l...)
	return func() string {
		return prefix + gonanoid.MustGenerate(Lowercase, size)
	}
}

// IsPrimaryKey reports whether id was produced by PrimaryKey(prefix)
func IsPrimaryKey(prefix, id string, l ...int) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	rest := id[len(prefix):]
	if len(rest) != getSize(l...) {
		return false
	}
	for _, r := range rest {
		if !strings.ContainsRune(Lowercase, r) {
			return false
		}
	}
	return true
}
