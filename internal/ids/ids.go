// Package ids generates entity and operation identifiers and resolves the
// short prefixes users type on the command line.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// ShortLength is the number of characters shown for an id in listings.
const ShortLength = 8

// New returns a random (version 4) UUID. Random ids keep short prefixes
// discriminating, unlike time-ordered ones.
func New() string {
	return uuid.NewString()
}

// Short truncates id to ShortLength characters.
func Short(id string) string {
	if len(id) <= ShortLength {
		return id
	}
	return id[:ShortLength]
}

// Normalize lowercases and trims a user supplied id or prefix.
func Normalize(prefix string) string {
	return strings.ToLower(strings.TrimSpace(prefix))
}

// UniquePrefixLengths returns the shortest unique prefix length for each ID.
func UniquePrefixLengths(ids []string) map[string]int {
	uniqueIDs := make([]string, 0, len(ids))
	seen := make(map[string]bool)
	for _, id := range ids {
		idLower := strings.ToLower(id)
		if idLower == "" || seen[idLower] {
			continue
		}
		seen[idLower] = true
		uniqueIDs = append(uniqueIDs, idLower)
	}

	lengths := make(map[string]int, len(uniqueIDs))
	for _, id := range uniqueIDs {
		lengths[id] = uniquePrefixLength(id, uniqueIDs)
	}

	return lengths
}

func uniquePrefixLength(id string, ids []string) int {
	for length := 1; length <= len(id); length++ {
		prefix := id[:length]
		unique := true
		for _, other := range ids {
			if other == id {
				continue
			}
			if strings.HasPrefix(other, prefix) {
				unique = false
				break
			}
		}
		if unique {
			return length
		}
	}

	return len(id)
}
