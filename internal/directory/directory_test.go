package directory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func TestListFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"nome":"Macerata","fermataID":7},{"nome":"Tolentino","fermataID":3}]`))
	}))
	defer srv.Close()

	c := &Client{Endpoint: srv.URL}
	cities := c.List(context.Background())

	if len(cities) != 2 {
		t.Fatalf("len = %d, want 2", len(cities))
	}
	// Sorted ascending by ID regardless of fetch order
	if cities[0].ID != 3 || cities[1].ID != 7 {
		t.Errorf("order = %v", cities)
	}
}

func TestListFallbackOnError(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed payload", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"not":"an array"}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := &Client{Endpoint: srv.URL}
			cities := c.List(context.Background())

			want := Fallback()
			if len(cities) != len(want) {
				t.Fatalf("len = %d, want %d", len(cities), len(want))
			}
			for i := range want {
				if cities[i] != want[i] {
					t.Errorf("cities[%d] = %v, want %v", i, cities[i], want[i])
				}
			}
		})
	}
}

func TestFallbackSorted(t *testing.T) {
	cities := Fallback()
	if !sort.SliceIsSorted(cities, func(i, j int) bool { return cities[i].ID < cities[j].ID }) {
		t.Errorf("fallback list not sorted by ID: %v", cities)
	}
}

func TestLookup(t *testing.T) {
	cities := Fallback()

	cases := []struct {
		id   uint32
		want string
		ok   bool
	}{
		{24, "Camerino", true},
		{38, "Ancona Piazza Cavour", true},
		{53, "Porto San Giorgio", true},
		{1, "", false},
		{99, "", false},
	}
	for _, tc := range cases {
		name, err := Lookup(cities, tc.id)
		if tc.ok {
			if err != nil {
				t.Errorf("Lookup(%d): %v", tc.id, err)
			}
			if name != tc.want {
				t.Errorf("Lookup(%d) = %q, want %q", tc.id, name, tc.want)
			}
		} else if !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup(%d) err = %v, want ErrNotFound", tc.id, err)
		}
	}
}

// Lookup must resolve the same name whether the list came from a fetch or
// from the fallback, as long as the ID is in the fallback set.
func TestLookupFetchIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"nome":"Camerino","fermataID":24},{"nome":"Ancona Piazza Cavour","fermataID":38}]`))
	}))
	defer srv.Close()

	fetched := (&Client{Endpoint: srv.URL}).List(context.Background())
	fallback := Fallback()

	for _, id := range []uint32{24, 38} {
		a, err := Lookup(fetched, id)
		if err != nil {
			t.Fatalf("fetched Lookup(%d): %v", id, err)
		}
		b, err := Lookup(fallback, id)
		if err != nil {
			t.Fatalf("fallback Lookup(%d): %v", id, err)
		}
		if a != b {
			t.Errorf("Lookup(%d): fetched %q != fallback %q", id, a, b)
		}
	}
}
