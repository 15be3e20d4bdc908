// Package fingerprint derives the natural key used to upsert imported show
// dates. The key is stable across runs so re-imports update in place.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Separator joins the parts before hashing.
const Separator = "-"

// Of returns the hex SHA-1 of id, date and showID joined with Separator.
func Of(id, date, showID string) string {
	sum := sha1.Sum([]byte(strings.Join([]string{id, date, showID}, Separator)))
	return hex.EncodeToString(sum[:])
}
