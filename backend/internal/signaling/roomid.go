package signaling

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultRoomIDLength matches the length of room codes shared by the web client.
const DefaultRoomIDLength = 8

// GenerateRoomID returns a random uppercase base-36 room code that taken
// does not report as in use.
func GenerateRoomID(length int, taken func(string) bool) string {
	if length <= 0 {
		length = DefaultRoomIDLength
	}

	for {
		var b strings.Builder
		b.Grow(length)
		for i := 0; i < length; i++ {
			b.WriteByte(roomIDAlphabet[randomIndex(len(roomIDAlphabet))])
		}

		id := b.String()
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return int(n.Int64())
}
