package commands

import (
	"context"
	"fmt"
	"strings"
)

// Insult addresses a random insult to the named target.
func (c *Commands) Insult(ctx context.Context, target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return "Usage: /insult @username"
	}

	insult, err := c.getText(ctx, c.insultURL+"?lang=en&type=text")
	if err != nil {
		c.logger.Error("insult fetch failed", "error", err)
		return "Error retrieving insult, please try again later."
	}
	insult = strings.TrimSpace(insult)
	if insult == "" {
		return "I ran out of insults, but just imagine something mean!"
	}
	return fmt.Sprintf("Hey %s, %s", target, lowerFirst(insult))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
