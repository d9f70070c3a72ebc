package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter counts tokens with the cl100k_base encoding, which is a
// close approximation for Claude models. Falls back to a bytes/4
// estimate when the encoding cannot be loaded.
type tokenCounter struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

var counter tokenCounter

// CountTokens returns the token count of text.
func CountTokens(text string) int {
	counter.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			counter.encoding = enc
		}
	})
	if counter.encoding == nil {
		return len(text) / 4
	}
	return len(counter.encoding.Encode(text, nil, nil))
}
