package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// rainy weather codes per the WMO interpretation used by Open-Meteo.
var rainyCodes = map[int]bool{61: true, 63: true, 65: true, 80: true, 81: true, 82: true}

// Weather returns the current conditions for a city name or UK
// postcode.
func (c *Commands) Weather(ctx context.Context, location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return "Usage: /weather <city or UK postcode>"
	}

	lat, lon, ok := c.geocode(ctx, location)
	if !ok {
		return "Location not found. Please enter a valid city name or UK postcode."
	}

	var forecast struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			WeatherCode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	weatherURL := fmt.Sprintf("%s?latitude=%s&longitude=%s&current_weather=true",
		c.openMeteoURL, lat, lon)
	if err := c.getJSON(ctx, weatherURL, nil, &forecast); err != nil {
		c.logger.Error("weather fetch failed", "location", location, "error", err)
		return "Error retrieving weather data. Please try again later."
	}

	condition := "Clear/Cloudy"
	if rainyCodes[forecast.CurrentWeather.WeatherCode] {
		condition = "Rainy"
	}
	return fmt.Sprintf("Current weather in %s:\n🌡 Temperature: %.1f°C\n☁ Condition: %s",
		capitalize(location), forecast.CurrentWeather.Temperature, condition)
}

// geocode resolves a location to coordinates, trying Nominatim for
// UK-postcode-looking input and Open-Meteo's geocoder otherwise.
func (c *Commands) geocode(ctx context.Context, location string) (lat, lon string, ok bool) {
	if looksLikeUKPostcode(location) {
		var results []struct {
			Lat string `json:"lat"`
			Lon string `json:"lon"`
		}
		geoURL := fmt.Sprintf("%s?format=json&q=%s", c.nominatimURL, url.QueryEscape(location+", UK"))
		headers := map[string]string{"User-Agent": "Mozilla/5.0"}
		if err := c.getJSON(ctx, geoURL, headers, &results); err == nil && len(results) > 0 {
			return results[0].Lat, results[0].Lon, true
		}
	}

	var geo struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	geoURL := fmt.Sprintf("%s?name=%s&count=1&language=en&format=json",
		c.openMeteoGeoURL, url.QueryEscape(location))
	if err := c.getJSON(ctx, geoURL, nil, &geo); err != nil || len(geo.Results) == 0 {
		return "", "", false
	}
	return fmt.Sprintf("%g", geo.Results[0].Latitude), fmt.Sprintf("%g", geo.Results[0].Longitude), true
}

// looksLikeUKPostcode reports whether the input is alphanumeric with at
// least one digit, e.g. "CH4 8SE".
func looksLikeUKPostcode(s string) bool {
	compact := strings.ReplaceAll(s, " ", "")
	if compact == "" {
		return false
	}
	hasDigit := false
	for _, r := range compact {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasDigit
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
