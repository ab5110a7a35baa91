// Package shortcode generates URL-safe short codes and validates custom
// aliases. Generation checks candidates against the durable store before
// handing them to the caller; the store's unique index remains the final
// arbiter, the check here only reduces insert contention.
package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/linkcut/linkcut/internal/db"
)

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrGenerationExhausted is returned when every candidate within the retry
// budget collided. The caller can retry with backoff; repeated failures mean
// the code space needs widening.
var ErrGenerationExhausted = errors.New("short code space exhausted, retry later")

// ErrAliasTaken is returned when a requested custom alias collides with an
// existing short code or alias.
var ErrAliasTaken = errors.New("custom alias already exists")

var (
	aliasRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
	urlRe   = regexp.MustCompile(`^https?://([a-zA-Z0-9-]+\.)*[a-zA-Z0-9-]+\.[a-zA-Z]{2,}(/.*)?$`)
)

// Generator produces short codes of a fixed length with a bounded number of
// collision retries.
type Generator struct {
	Length     int
	MaxRetries int
}

// Generate returns a candidate code that did not exist in the store at check
// time. It draws random codes and re-draws on collision, up to MaxRetries
// attempts.
func (g Generator) Generate(ctx context.Context, store db.ShortenerStorage) (string, error) {
	for attempt := 0; attempt < g.MaxRetries; attempt++ {
		code, err := randomCode(g.Length)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}

		inUse, err := store.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

// ValidAlias reports whether alias satisfies the allowed syntax.
func ValidAlias(alias string) bool {
	return aliasRe.MatchString(alias)
}

// CheckAlias validates the alias syntax and verifies it collides with neither
// an existing code nor an existing alias.
func (g Generator) CheckAlias(ctx context.Context, store db.ShortenerStorage, alias string) error {
	if !ValidAlias(alias) {
		return fmt.Errorf("invalid alias %q: must match %s", alias, aliasRe.String())
	}
	inUse, err := store.CodeInUse(ctx, alias)
	if err != nil {
		return fmt.Errorf("failed to check alias: %w", err)
	}
	if inUse {
		return ErrAliasTaken
	}
	return nil
}

func randomCode(length int) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

// ValidateURL reports whether url looks like an absolute http(s) URL.
func ValidateURL(url string) bool {
	return urlRe.MatchString(url)
}
