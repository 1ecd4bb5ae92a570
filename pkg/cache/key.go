package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// PageKey identifies one cached page of one collection view.
type PageKey struct {
	// Collection is the server collection, e.g. "papers".
	Collection string

	// Filters are the view's extra query parameters.
	Filters url.Values

	// Page and PerPage pin the page geometry.
	Page    int
	PerPage int
}

// String generates a deterministic cache key string.
// Format: sync:collection:filter1=val1:...:page=N:per=M
//
// Example:
//
//	sync:papers:status=unread:page=2:per=20
func (k PageKey) String() string {
	parts := []string{"sync", k.Collection}

	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Filters.Get(name)))
		}
	}

	parts = append(parts,
		fmt.Sprintf("page=%d", k.Page),
		fmt.Sprintf("per=%d", k.PerPage))

	return strings.Join(parts, ":")
}

// collectionPrefix is the key prefix shared by every page of a collection,
// used for invalidation scans.
func collectionPrefix(collection string) string {
	return "sync:" + collection + ":"
}
