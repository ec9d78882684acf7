// Package tiktoken adapts the tiktoken-go BPE encodings to the tokenizer
// interface used for chunking and history budgeting.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves an encoding by model name first ("gpt-4o"), then by encoding
// name ("cl100k_base").
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

// DecodeIds returns the substring that corresponds to a token window
func (t *Tokenizer) DecodeIds(ids []int) string {
	return t.enc.Decode(ids)
}
