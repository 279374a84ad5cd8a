package domain

import "time"

// RevokedToken is a blacklist entry. The raw token is never stored, only a
// fixed-size digest of its ciphertext.
type RevokedToken struct {
	Digest    string
	CreatedAt time.Time
}

// Live reports whether the entry still blocks its token at now.
func (t *RevokedToken) Live(now time.Time, retention time.Duration) bool {
	return now.Before(t.CreatedAt.Add(retention))
}
