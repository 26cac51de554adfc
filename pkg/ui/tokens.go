package ui

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

// TokenCounter counts cl100k_base tokens. The encoding is loaded on first use.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the number of tokens in s.
func (c *TokenCounter) Count(s string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
		if c.err != nil {
			c.err = errors.Wrap(c.err, "could not load token encoding")
		}
	})
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(s, nil, nil)), nil
}
