package generate

import "strings"

var specialTokens = []string{"<|endoftext|>", "<pad>", "</s>", "<s>", "<unk>"}

// StripSpecialTokens removes model control tokens and trims the result.
func StripSpecialTokens(s string) string {
	for _, tok := range specialTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return strings.TrimSpace(s)
}
