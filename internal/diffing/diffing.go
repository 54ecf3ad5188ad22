package diffing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// StableJSON serializes obj with sorted keys and no insignificant whitespace.
// Two equal values always produce byte-equal output, which is what the
// snapshot and diff fingerprints rely on.
func StableJSON(obj interface{}) string {
	// encoding/json already sorts map keys and emits compact output
	data, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(data)
}

// SHA256Hex returns the lowercase hex SHA-256 of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SnapshotHash fingerprints a link list in its stored order. Two hashes are
// equal iff the serialized lists are byte-equal.
func SnapshotHash(links []string) string {
	if links == nil {
		links = []string{}
	}
	return SHA256Hex(StableJSON(links))
}

// DedupePreserveOrder removes duplicates keeping the first occurrence order.
func DedupePreserveOrder(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, x := range items {
		if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}

// DiffLinks computes the set difference in both directions. The removed set is
// observed for logging only and never persisted.
func DiffLinks(oldLinks, newLinks []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(oldLinks))
	for _, l := range oldLinks {
		oldSet[l] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLinks))
	for _, l := range newLinks {
		newSet[l] = struct{}{}
	}

	for l := range newSet {
		if _, ok := oldSet[l]; !ok {
			added = append(added, l)
		}
	}
	for l := range oldSet {
		if _, ok := newSet[l]; !ok {
			removed = append(removed, l)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Payload is the canonical form of one diff: the site plus the sorted unique
// set of newly added URLs, fingerprinted over its stable JSON encoding.
type Payload struct {
	Site      string   `json:"site"`
	AddedURLs []string `json:"added_urls"`
	DiffHash  string   `json:"-"`
}

// BuildPayload constructs the canonical diff payload for a site. addedURLs
// may arrive in any order; the payload stores the sorted unique set.
func BuildPayload(site string, addedURLs []string) Payload {
	sorted := DedupePreserveOrder(addedURLs)
	sort.Strings(sorted)

	p := Payload{
		Site:      site,
		AddedURLs: sorted,
	}
	p.DiffHash = SHA256Hex(StableJSON(map[string]interface{}{
		"added_urls": sorted,
		"site":       site,
	}))
	return p
}
