package call

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// idWords is the number of words in a generated call id.
const idWords = 4

// NewID returns a random, memorable call id of the form
// word-word-word-word (e.g. "amber-heron-tuba-meadow"). Each word comes
// from a different list.
func NewID() (string, error) {
	lists := [][]string{moods, colors, birds, instruments, places, things}

	// Partial Fisher-Yates over the lists so no list is used twice.
	for i := 0; i < idWords; i++ {
		j, err := randomIndex(len(lists) - i)
		if err != nil {
			return "", err
		}
		lists[i], lists[i+j] = lists[i+j], lists[i]
	}

	words := make([]string, idWords)
	for i := range words {
		n, err := randomIndex(len(lists[i]))
		if err != nil {
			return "", err
		}
		words[i] = lists[i][n]
	}
	return strings.Join(words, "-"), nil
}

// randomIndex returns a cryptographically secure random index in [0, n).
func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generate call id: %w", err)
	}
	return int(v.Int64()), nil
}
