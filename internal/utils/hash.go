package utils

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// FolderKey derives the stable identifier a folder's sync state is keyed by.
// The folder URL is canonical identity; the key must never change for a given URL.
func FolderKey(folderURL string) string {
	h := fnv.New64a()
	h.Write([]byte(folderURL))
	return fmt.Sprintf("folderstate_%x", h.Sum64())
}

// FlagHash computes an order-independent hash over a message's mutable flags.
// Flags are lowercased and sorted first so that server-side representation or
// ordering differences never cause a spurious re-index.
func FlagHash(flags []string) int64 {
	if len(flags) == 0 {
		return 0
	}

	normalized := make([]string, 0, len(flags))
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			normalized = append(normalized, f)
		}
	}
	sort.Strings(normalized)

	h := fnv.New32a()
	for _, f := range normalized {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return int64(h.Sum32())
}
