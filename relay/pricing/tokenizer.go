package pricing

import (
	"sync"

	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/llmgateway/llmgateway/common/logger"
)

// estimationEncoding is the tokenizer used when an upstream omits usage.
// Token counts are approximate anyway, so one encoding serves every family.
const estimationEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens in text with tiktoken, falling back to a
// bytes/4 heuristic when the encoding cannot be loaded.
func EstimateTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(estimationEncoding)
		if err != nil {
			logger.Logger.Warn("load tiktoken encoding, falling back to heuristic", zap.Error(err))
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
