// Package directory fetches the list of bookable stops from the carrier's
// public API, falling back to a fixed built-in list when the API is
// unreachable.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// DefaultEndpoint is the carrier's departure-stop listing.
const DefaultEndpoint = "https://marcheroma.contram.it/api/fermata/partenza"

// ErrNotFound is returned by Lookup when no city has the requested ID.
var ErrNotFound = errors.New("city not found")

// City is a bookable stop.
type City struct {
	Name string `json:"nome"`
	ID   uint32 `json:"fermataID"`
}

// Fallback returns the built-in stop list used when the fetch fails.
// The entries and IDs are fixed by the carrier.
func Fallback() []City {
	return []City{
		{Name: "Camerino", ID: 24},
		{Name: "Ancona Piazza Cavour", ID: 38},
		{Name: "Ancona Stazione F.S.", ID: 39},
		{Name: "Civitanova Marche Via Sonnino", ID: 42},
		{Name: "Porto San Giorgio", ID: 53},
	}
}

// Client fetches the current stop list. Zero value is usable.
type Client struct {
	Endpoint string        // defaults to DefaultEndpoint
	Timeout  time.Duration // per-fetch bound, defaults to 10s
	Logger   *slog.Logger
}

// List returns the current stops, sorted ascending by ID. A single fetch
// attempt is made; any transport or decode failure yields the fallback list.
func (c *Client) List(ctx context.Context) []City {
	cities, err := c.fetch(ctx)
	if err != nil {
		c.logger().Warn("city fetch failed, using fallback list", "error", err)
		cities = Fallback()
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].ID < cities[j].ID })
	return cities
}

func (c *Client) fetch(ctx context.Context) ([]City, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: fetch: HTTP %d", resp.StatusCode)
	}

	var cities []City
	if err := json.NewDecoder(resp.Body).Decode(&cities); err != nil {
		return nil, fmt.Errorf("directory: decode: %w", err)
	}
	return cities, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Lookup finds a city by ID in a list sorted ascending by ID.
func Lookup(cities []City, id uint32) (string, error) {
	i := sort.Search(len(cities), func(i int) bool { return cities[i].ID >= id })
	if i < len(cities) && cities[i].ID == id {
		return cities[i].Name, nil
	}
	return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
}
