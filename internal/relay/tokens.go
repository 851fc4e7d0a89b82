package relay

import "github.com/pkoukk/tiktoken-go"

// EstimateTokens approximates the token count of text with the cl100k_base
// encoding. When the encoding is unavailable (no cached vocabulary and no
// network) it falls back to the rough four-characters-per-token heuristic.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
