package reports

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"astroreports/internal/domain"
)

const (
	CodeLength = 8
	// 32 symbols without 0/O and 1/I so codes survive being read aloud.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxCodeAttempts bounds the collision retries before giving up.
	MaxCodeAttempts = 10
)

type codeChecker interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeGenerator issues public job codes that are unique across all kinds.
type CodeGenerator struct {
	store  codeChecker
	random io.Reader
}

// NewCodeGenerator returns a generator reading from random, or crypto/rand
// when random is nil.
func NewCodeGenerator(store codeChecker, random io.Reader) *CodeGenerator {
	if random == nil {
		random = rand.Reader
	}
	return &CodeGenerator{store: store, random: random}
}

// Next returns a code not yet used by any job.
func (g *CodeGenerator) Next(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := g.random32()
		if err != nil {
			return "", err
		}
		exists, err := g.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrCodeGenerationExhausted, MaxCodeAttempts)
}

func (g *CodeGenerator) random32() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
