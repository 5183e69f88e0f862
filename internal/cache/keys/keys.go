// Package keys builds the Redis key scheme for cached pricing
// configuration snapshots. Keys are scoped by region so that a change
// to one region's configuration can evict only that region's entries.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "cfg"

// BasePrices is the key for a region's base price snapshot.
func BasePrices(regionID string) string {
	return entity("base_prices", regionID)
}

// FixedPrices is the key for the fixed price snapshot of an
// origin/destination region pair.
func FixedPrices(originID, destinationID string) string {
	pair := originID + ">" + destinationID
	safe := sanitize(pair)
	const maxPairLen = 96
	if len(safe) > maxPairLen {
		safe = safe[:maxPairLen]
	}
	sum := xxhash.Sum64String(pair)
	return fmt.Sprintf("%s:fixed_prices:%s:h=%016x", prefix, safe, sum)
}

// Surcharges is the key for a region's surcharge snapshot.
func Surcharges(regionID string) string {
	return entity("surcharges", regionID)
}

// RegionPattern matches every snapshot key that involves the region,
// including fixed price pairs where it appears as origin or destination.
func RegionPattern(regionID string) string {
	return prefix + ":*" + sanitize(regionID) + "*"
}

func entity(kind, regionID string) string {
	safe := sanitize(regionID)
	const maxIDLen = 64
	if len(safe) > maxIDLen {
		safe = safe[:maxIDLen]
	}
	sum := xxhash.Sum64String(regionID)
	return fmt.Sprintf("%s:%s:%s:h=%016x", prefix, kind, safe, sum)
}

// sanitize keeps keys readable in redis-cli while preventing whitespace
// or glob metacharacters from leaking into the key space.
func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '>':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
