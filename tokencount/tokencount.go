// Package tokencount estimates prompt/completion token counts for backends
// that cannot report real usage from a vendor API, so an AgentResult's
// usage is always a best-effort number rather than zeros.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/conductormesh/message"
)

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
	"claude-3":      "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// Estimator counts tokens for a single encoding, lazily initialized on
// first use since loading the BPE ranks can touch the filesystem/network.
type Estimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// ForModel returns an Estimator using the encoding associated with model,
// falling back to cl100k_base for unrecognized model names.
func ForModel(model string) *Estimator {
	encoding, ok := modelEncodings[model]
	if !ok {
		for prefix, enc := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = enc
				ok = true
				break
			}
		}
	}
	if !ok {
		encoding = defaultEncoding
	}
	return &Estimator{encoding: encoding}
}

func (e *Estimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = fmt.Errorf("tokencount: init encoding %q: %w", e.encoding, err)
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// Count returns the number of tokens in text, or 0 if the encoding could
// not be initialized.
func (e *Estimator) Count(text string) int {
	if err := e.init(); err != nil {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

// CountMessages sums the per-message token overhead plus content/role
// tokens across msgs, approximating the chat-completion framing overhead.
func (e *Estimator) CountMessages(msgs []message.Message) int {
	if err := e.init(); err != nil {
		return 0
	}
	total := 3
	for _, m := range msgs {
		total += 4
		total += len(e.enc.Encode(m.Content, nil, nil))
		total += len(e.enc.Encode(string(m.Role), nil, nil))
	}
	return total
}
