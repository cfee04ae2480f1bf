package pipeline

import (
	"strings"
	"unicode/utf8"
)

// Sentence enders for English and Hindi (danda).
const sentenceEnders = ".!?।"

// extractCompleteSentences splits buffer after its last sentence boundary,
// returning (complete sentences, remaining buffer).
func extractCompleteSentences(buffer string) (string, string) {
	i := strings.LastIndexAny(buffer, sentenceEnders)
	if i < 0 {
		return "", buffer
	}
	_, size := utf8.DecodeRuneInString(buffer[i:])
	return buffer[:i+size], buffer[i+size:]
}
