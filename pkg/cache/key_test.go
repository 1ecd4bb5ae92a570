package cache

import (
	"net/url"
	"testing"
)

func TestPageKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  PageKey
		want string
	}{
		{
			name: "no filters",
			key:  PageKey{Collection: "papers", Page: 1, PerPage: 20},
			want: "sync:papers:page=1:per=20",
		},
		{
			name: "single filter",
			key: PageKey{
				Collection: "papers",
				Filters:    url.Values{"status": {"unread"}},
				Page:       2,
				PerPage:    20,
			},
			want: "sync:papers:status=unread:page=2:per=20",
		},
		{
			name: "filters sorted for determinism",
			key: PageKey{
				Collection: "papers",
				Filters:    url.Values{"tag": {"ml"}, "status": {"read"}},
				Page:       1,
				PerPage:    50,
			},
			want: "sync:papers:status=read:tag=ml:page=1:per=50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageKey_FilterOrderIrrelevant(t *testing.T) {
	a := PageKey{
		Collection: "papers",
		Filters:    url.Values{"a": {"1"}, "b": {"2"}, "c": {"3"}},
		Page:       1,
		PerPage:    10,
	}
	b := PageKey{
		Collection: "papers",
		Filters:    url.Values{"c": {"3"}, "a": {"1"}, "b": {"2"}},
		Page:       1,
		PerPage:    10,
	}
	if a.String() != b.String() {
		t.Errorf("same filters produced different keys: %q vs %q", a.String(), b.String())
	}
}
