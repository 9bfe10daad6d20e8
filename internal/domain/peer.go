// Package domain contains entities without logic, just meta-data
package domain

import "errors"

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

// PeerID is the connection identifier of a live signaling connection.
type PeerID string

type PeerInfo struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// NewPeerInfo validates the display name supplied at join time.
func NewPeerInfo(id PeerID, name string) (PeerInfo, error) {
	if len(name) == 0 {
		return PeerInfo{}, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return PeerInfo{}, ErrNameTooLong
	}
	return PeerInfo{ID: id, Name: name}, nil
}
