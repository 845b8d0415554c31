package channels

import "strings"

// Keyword reactions, checked in order: GIFs, then stickers, then
// emoji. The first match wins and stops further processing.

var reactionGIFs = map[string]string{
	"informer": "https://media3.giphy.com/media/12jpDs6Z9rSQNO/giphy.gif",
}

var reactionStickers = map[string]string{
	"not worthwhile": "CAACAgQAAxkBAAEN7OJnw47vgltrMdG3wA9dbm8P-Gq36gACPA0AAscocVEUPP2IDSRDKDYE",
}

var reactionEmojis = map[string]string{
	"legend": "👏",
}

type reactionKind int

const (
	reactionNone reactionKind = iota
	reactionGIF
	reactionSticker
	reactionEmoji
)

// reactionFor returns the first reaction triggered by the message text.
func reactionFor(text string) (reactionKind, string) {
	lower := strings.ToLower(text)
	for keyword, url := range reactionGIFs {
		if strings.Contains(lower, keyword) {
			return reactionGIF, url
		}
	}
	for keyword, fileID := range reactionStickers {
		if strings.Contains(lower, keyword) {
			return reactionSticker, fileID
		}
	}
	for keyword, emoji := range reactionEmojis {
		if strings.Contains(lower, keyword) {
			return reactionEmoji, emoji
		}
	}
	return reactionNone, ""
}
