package commands

import "context"

// JokePollOptions are the rating choices offered after each joke.
var JokePollOptions = []string{"😂 Hilarious", "😆 Good", "😐 Meh", "🙄 Bad", "🤦 Terrible"}

// JokePollQuestion is the rating poll prompt.
const JokePollQuestion = "Rate the previous dad joke"

// DadJoke fetches a random dad joke.
func (c *Commands) DadJoke(ctx context.Context) string {
	var data struct {
		Joke string `json:"joke"`
	}
	headers := map[string]string{"Accept": "application/json"}
	if err := c.getJSON(ctx, c.dadJokeURL, headers, &data); err != nil {
		c.logger.Error("dad joke fetch failed", "error", err)
		return "Error retrieving a dad joke. Please try again later."
	}
	if data.Joke == "" {
		return "Couldn't fetch a dad joke. Try again!"
	}
	return data.Joke
}
