package domain

import "time"

// User represents a platform account.
type User struct {
	ID           string
	Email        string
	Salt         string
	PasswordHash []byte
	IsActive     bool
	IsVerified   bool
	IsSuperuser  bool
	Keys         SealedKeys
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SealedKeys holds third-party API keys encrypted at rest.
type SealedKeys struct {
	OpenAI    []byte
	Tavily    []byte
	Firecrawl []byte
}

// Credentials are the decrypted per-user provider keys.
type Credentials struct {
	OpenAI    string
	Tavily    string
	Firecrawl string
}

// MaxPageSize caps one page of a user listing.
const MaxPageSize = 500

// UserFilter narrows user listings.
type UserFilter struct {
	Active *bool
	Limit  int
	Offset int
}

// PageSize is Limit clamped to (0, MaxPageSize]. Zero means a full page.
func (f UserFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > MaxPageSize {
		return MaxPageSize
	}
	return f.Limit
}
