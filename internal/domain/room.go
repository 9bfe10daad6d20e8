package domain

import "errors"

const MaxRoomIDLen = 36

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

// ValidateRoomID checks the length limits applied to client supplied room ids.
func ValidateRoomID(id RoomID) error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// RoomSnapshot is what join and getMyRoomInfo answer with.
type RoomSnapshot struct {
	ID    RoomID     `json:"id"`
	Peers []PeerInfo `json:"peers"`
}

// RoomInfo is the listing view served over REST.
type RoomInfo struct {
	ID        RoomID `json:"id"`
	PeerCount int    `json:"peer_count"`
	Ready     bool   `json:"ready"`
}
