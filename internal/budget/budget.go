package budget

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Unit is the measure used for context size limits.
type Unit int

const (
	Bytes Unit = iota
	Runes
	Tokens
)

// ParseUnit accepts "bytes", "runes" (or "chars") and "tokens". The empty
// string means Bytes.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bytes", "byte":
		return Bytes, nil
	case "runes", "rune", "chars", "characters":
		return Runes, nil
	case "tokens", "token":
		return Tokens, nil
	}
	return Bytes, fmt.Errorf("unknown size unit %q", s)
}

func (u Unit) String() string {
	switch u {
	case Runes:
		return "runes"
	case Tokens:
		return "tokens"
	}
	return "bytes"
}

// Measure returns the size of text in u.
func (u Unit) Measure(text string) int {
	return u.fromRaw(u.raw(text))
}

func (u Unit) raw(text string) int {
	switch u {
	case Runes:
		return utf8.RuneCountInString(text)
	case Tokens:
		return len(strings.Fields(text))
	}
	return len(text)
}

func (u Unit) fromRaw(n int) int {
	if u == Tokens {
		return tokensFromWords(n)
	}
	return n
}

// EstimateTokens gives a rough token count using ~1.33 tokens per word.
func EstimateTokens(text string) int {
	return tokensFromWords(len(strings.Fields(text)))
}

func tokensFromWords(words int) int {
	if words == 0 {
		return 0
	}
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// Counter accumulates the size of text appended piece by piece. Pieces are
// assumed to be joined by whitespace, so token estimates stay additive in
// words.
type Counter struct {
	Unit Unit
	raw  int
}

// Add records text as appended.
func (c *Counter) Add(text string) {
	c.raw += c.Unit.raw(text)
}

// With returns the size the counter would report after adding text.
func (c *Counter) With(text string) int {
	return c.Unit.fromRaw(c.raw + c.Unit.raw(text))
}

// Size is the current total.
func (c *Counter) Size() int {
	return c.Unit.fromRaw(c.raw)
}
