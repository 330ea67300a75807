package generate

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tokenloader "github.com/pkoukk/tiktoken-go-loader"
	"go.uber.org/zap"
)

const bytesPerToken = 4

// BPE ranks come from files embedded in the binary, so loading an encoding
// never reaches the network.
func init() {
	tiktoken.SetBpeLoader(tokenloader.NewOfflineLoader())
}

// Truncator cuts prompts to a token budget, keeping the head. Without a
// known BPE encoding it falls back to a byte estimate of four bytes per token.
type Truncator struct {
	enc *tiktoken.Tiktoken
}

func NewTruncator(encoding string, log *zap.Logger) *Truncator {
	if encoding == "" {
		return &Truncator{}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		if log != nil {
			log.Warn("token encoding unavailable, using byte estimate",
				zap.String("encoding", encoding), zap.Error(err))
		}
		return &Truncator{}
	}
	return &Truncator{enc: enc}
}

// Count reports the token length of s.
func (t *Truncator) Count(s string) int {
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	if s == "" {
		return 0
	}
	return (len(s) + bytesPerToken - 1) / bytesPerToken
}

// Truncate returns s unchanged when it fits in maxTokens, otherwise its
// longest prefix that does. A non-positive budget disables truncation.
func (t *Truncator) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}
	if t.enc != nil {
		tokens := t.enc.Encode(s, nil, nil)
		if len(tokens) <= maxTokens {
			return s
		}
		return strings.ToValidUTF8(t.enc.Decode(tokens[:maxTokens]), "")
	}
	limit := maxTokens * bytesPerToken
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
