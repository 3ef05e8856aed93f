package models

import (
	"fmt"
	"time"
)

type Secret struct {
	ID                string    `json:"id"`
	Content           string    `json:"-"`
	PasswordHash      string    `json:"-"`   // empty when no password is required
	TTL               int       `json:"ttl"` // seconds, informational unless expiry is enforced
	AdminToken        string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	RemainingAttempts int       `json:"remaining_attempts"`
	AccessLogs        []string  `json:"access_logs,omitempty"`
	Version           int64     `json:"version"`
}

func (s *Secret) RequiresPassword() bool {
	return s.PasswordHash != ""
}

func (s *Secret) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.TTL) * time.Second)
}

// Expired reports whether the secret outlived its TTL. Non-positive TTLs never expire.
func (s *Secret) Expired(now time.Time) bool {
	return s.TTL > 0 && now.After(s.ExpiresAt())
}

func (s *Secret) AppendLog(at time.Time, event string) {
	s.AccessLogs = append(s.AccessLogs, fmt.Sprintf("%s %s", at.UTC().Format(time.RFC3339), event))
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Secret) Clone() *Secret {
	c := *s
	if s.AccessLogs != nil {
		c.AccessLogs = append([]string(nil), s.AccessLogs...)
	}
	return &c
}
