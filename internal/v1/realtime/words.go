package realtime

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

// WordBank holds the static wordlist that turn answers are drawn from.
// It is loaded once at startup and shared by every room's game loop.
type WordBank struct {
	words []string
}

// NewWordBank wraps an already-loaded list of words.
func NewWordBank(words []string) *WordBank {
	return &WordBank{words: words}
}

// LoadWords reads a wordlist file with one word per line. Surrounding
// whitespace is stripped and blank lines are skipped.
func LoadWords(path string) (*WordBank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer func() { _ = f.Close() }()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if word := strings.TrimSpace(scanner.Text()); word != "" {
			words = append(words, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read wordlist %s: %w", path, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wordlist %s contains no words", path)
	}
	return &WordBank{words: words}, nil
}

// Draw returns n words drawn at random with replacement.
func (w *WordBank) Draw(n int) []string {
	drawn := make([]string, n)
	for i := range drawn {
		drawn[i] = w.words[rand.Intn(len(w.words))]
	}
	return drawn
}

// Contains reports whether word is in the bank.
func (w *WordBank) Contains(word string) bool {
	for _, candidate := range w.words {
		if candidate == word {
			return true
		}
	}
	return false
}

// Len returns the number of words in the bank.
func (w *WordBank) Len() int {
	return len(w.words)
}
