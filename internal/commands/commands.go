// Package commands implements the stateless chat command wrappers:
// each takes the command's text arguments and returns a display string.
// Upstream API failures resolve to plain-text user messages, never raw
// errors.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds the API keys the wrappers need.
type Config struct {
	OMDbAPIKey         string
	ExchangeRateAPIKey string
	Logger             *slog.Logger
}

// Commands bundles the wrappers around one shared HTTP client.
type Commands struct {
	http   *http.Client
	logger *slog.Logger

	omdbKey string
	fxKey   string

	// Base URLs are fields so tests can point them at a local server.
	openMeteoGeoURL  string
	openMeteoURL     string
	nominatimURL     string
	dadJokeURL       string
	insultURL        string
	exchangeRateURL  string
	omdbURL          string
}

// New creates the command set with a shared 10s-timeout HTTP client.
func New(cfg Config) *Commands {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,

		omdbKey: cfg.OMDbAPIKey,
		fxKey:   cfg.ExchangeRateAPIKey,

		openMeteoGeoURL: "https://geocoding-api.open-meteo.com/v1/search",
		openMeteoURL:    "https://api.open-meteo.com/v1/forecast",
		nominatimURL:    "https://nominatim.openstreetmap.org/search",
		dadJokeURL:      "https://icanhazdadjoke.com/",
		insultURL:       "https://evilinsult.com/generate_insult.php",
		exchangeRateURL: "https://api.exchangerate.host/live",
		omdbURL:         "https://www.omdbapi.com/",
	}
}

// getJSON fetches url with the given headers and decodes the JSON body
// into v.
func (c *Commands) getJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// getText fetches url and returns the response body as a string.
func (c *Commands) getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
