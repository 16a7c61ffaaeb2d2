package domain

import (
	"fmt"
	"time"
)

// ServerInfo describes a media server found via discovery or
// configured explicitly.
type ServerInfo struct {
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
}

// RemoteURL returns the base URL for talking to the server.
func (s ServerInfo) RemoteURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// Pairing is a remote-control client paired with this daemon.
// CodeHash holds the argon2id hash of the pairing code; the plain code
// is never stored. The API layer maps pairings to a wire shape that
// omits the hash.
type Pairing struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"device_name"`
	CodeHash   string    `json:"code_hash,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
