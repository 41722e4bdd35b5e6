package conversations

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	conversationIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	conversationIDLength   = 6
)

// newConversationID returns a fresh random 6-character id.
func newConversationID() (string, error) {
	max := big.NewInt(int64(len(conversationIDAlphabet)))
	b := make([]byte, conversationIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate conversation id: %w", err)
		}
		b[i] = conversationIDAlphabet[n.Int64()]
	}
	return string(b), nil
}
