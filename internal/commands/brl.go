package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// GBPBRLRate returns the current GBP to BRL conversion rate.
func (c *Commands) GBPBRLRate(ctx context.Context) string {
	q := url.Values{}
	q.Set("source", "GBP")
	q.Set("quotes", "GBPBRL")
	if c.fxKey != "" {
		q.Set("access_key", c.fxKey)
	}

	var data struct {
		Quotes    map[string]float64 `json:"quotes"`
		Timestamp int64              `json:"timestamp"`
	}
	if err := c.getJSON(ctx, c.exchangeRateURL+"?"+q.Encode(), nil, &data); err != nil {
		c.logger.Error("exchange rate fetch failed", "error", err)
		return "Error retrieving conversion rate. Please try again later."
	}

	rate, ok := data.Quotes["GBPBRL"]
	if !ok {
		return "Unable to retrieve conversion rate at this time."
	}
	updated := time.Unix(data.Timestamp, 0).UTC().Format("06-01-02 15:04")
	return fmt.Sprintf("1 GBP = %.4f BRL\n(%s)", rate, updated)
}
