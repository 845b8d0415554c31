package commands

import (
	"context"
	"fmt"
	"net/url"
)

// Movie is one OMDb search result.
type Movie struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	ImdbID string `json:"imdbID"`
}

// SearchMovies queries OMDb for title matches. A nil slice means no
// matches (or an upstream failure, which is logged).
func (c *Commands) SearchMovies(ctx context.Context, name string) []Movie {
	var data struct {
		Response string  `json:"Response"`
		Search   []Movie `json:"Search"`
	}
	searchURL := fmt.Sprintf("%s?apikey=%s&s=%s", c.omdbURL, url.QueryEscape(c.omdbKey), url.QueryEscape(name))
	if err := c.getJSON(ctx, searchURL, nil, &data); err != nil {
		c.logger.Error("omdb search failed", "query", name, "error", err)
		return nil
	}
	if data.Response != "True" {
		return nil
	}
	return data.Search
}

// MovieInfo returns a formatted detail card for an IMDb id.
func (c *Commands) MovieInfo(ctx context.Context, imdbID string) string {
	var data struct {
		Response   string `json:"Response"`
		Title      string `json:"Title"`
		Year       string `json:"Year"`
		Plot       string `json:"Plot"`
		ImdbID     string `json:"imdbID"`
		ImdbRating string `json:"imdbRating"`
		Ratings    []struct {
			Source string `json:"Source"`
			Value  string `json:"Value"`
		} `json:"Ratings"`
	}
	detailURL := fmt.Sprintf("%s?i=%s&apikey=%s&plot=short", c.omdbURL, url.QueryEscape(imdbID), url.QueryEscape(c.omdbKey))
	if err := c.getJSON(ctx, detailURL, nil, &data); err != nil {
		c.logger.Error("omdb detail failed", "imdb_id", imdbID, "error", err)
		return "Error retrieving movie details. Please try again later."
	}
	if data.Response != "True" {
		return "Movie details not found. Please try again."
	}

	rottenTomatoes := "N/A"
	for _, r := range data.Ratings {
		if r.Source == "Rotten Tomatoes" {
			rottenTomatoes = r.Value
			break
		}
	}
	return fmt.Sprintf(
		"🎬 [%s](https://www.imdb.com/title/%s/) (%s)\n⭐ IMDb Score: %s/10\n🍅 Rotten Tomatoes: %s\n📖 %s",
		data.Title, data.ImdbID, data.Year, data.ImdbRating, rottenTomatoes, data.Plot,
	)
}
