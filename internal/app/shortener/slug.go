package shortener

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	AlphabetLower = "0123456789abcdefghijklmnopqrstuvwxyz"
	AlphabetMixed = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	DefaultSlugLength = 6
	DefaultMaxRetries = 5
)

// Allocator draws random slugs. It knows nothing about collisions; the
// registry retries on those.
type Allocator interface {
	Generate() (string, error)
}

// SlugAllocator maps each random byte onto the alphabet with b % len(alphabet).
// The modulo bias is accepted.
type SlugAllocator struct {
	length   int
	alphabet string
	random   io.Reader
}

type AllocatorOption func(*SlugAllocator)

// WithRandom replaces crypto/rand, for tests.
func WithRandom(r io.Reader) AllocatorOption {
	return func(a *SlugAllocator) { a.random = r }
}

func WithAlphabet(alphabet string) AllocatorOption {
	return func(a *SlugAllocator) { a.alphabet = alphabet }
}

func NewSlugAllocator(length int, opts ...AllocatorOption) (*SlugAllocator, error) {
	a := &SlugAllocator{length: length, alphabet: AlphabetLower, random: rand.Reader}
	for _, opt := range opts {
		opt(a)
	}
	if a.length <= 0 || a.length > MaxSlugLen {
		return nil, fmt.Errorf("slug length must be within [1, %d], got %d", MaxSlugLen, a.length)
	}
	if len(a.alphabet) < 2 || len(a.alphabet) > 256 {
		return nil, fmt.Errorf("slug alphabet must have 2..256 symbols, got %d", len(a.alphabet))
	}
	return a, nil
}

func (a *SlugAllocator) Generate() (string, error) {
	buf := make([]byte, a.length)
	if _, err := io.ReadFull(a.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = a.alphabet[int(b)%len(a.alphabet)]
	}
	return string(buf), nil
}
