package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TelegramMessageLimit is the hard per-message character cap imposed by the
// Telegram Bot API; callers chunk payloads below it before sending.
const TelegramMessageLimit = 4096

// Notifier delivers one text message to a notification channel. Send is the
// only irreversible external side effect in the whole pipeline and must run
// after both dedupe layers.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) (messageID string, err error)
}

// Console prints messages to stdout; the fallback when no channel is
// configured.
type Console struct{}

// NewConsole constructs a console notifier.
func NewConsole() *Console {
	return &Console{}
}

// Send writes the message to stdout.
func (c *Console) Send(_ context.Context, channelID, text string) (string, error) {
	fmt.Fprintf(os.Stdout, "--- alert [%s] ---\n%s\n", channelID, text)
	return "console", nil
}

// Chunk splits text into pieces of at most limit characters, preferring line
// boundaries. A single line longer than the limit is hard-split on runes.
func Chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			flush()
			runes := []rune(line)
			cut := limit
			if cut > len(runes) {
				cut = len(runes)
			}
			chunks = append(chunks, string(runes[:cut]))
			line = string(runes[cut:])
		}

		if current.Len() > 0 && current.Len()+1+len(line) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

var _ Notifier = (*Console)(nil)
