package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewSalt returns 16 random bytes hex encoded.
func NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DeriveUserID computes HMAC-SHA256(pepper, salt+email) and folds the first
// 16 bytes into a version 8 UUID so it fits a uuid column.
func DeriveUserID(pepper, salt, email string) uuid.UUID {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(salt + email))
	sum := mac.Sum(nil)

	var id uuid.UUID
	copy(id[:], sum[:16])
	id[6] = (id[6] & 0x0f) | 0x80
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}
