package app

import "errors"

var (
	ErrRoomExists        = errors.New("room already exists")
	ErrRoomNotFound      = errors.New("room does not exist")
	ErrRoomClosed        = errors.New("room closed")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrNotInRoom         = errors.New("not currently in a room")
	ErrRouterNotReady    = errors.New("router not ready")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerExists    = errors.New("producer for media type already exists")
	ErrPeerClosed        = errors.New("peer closed")
	ErrConsumerNotFound  = errors.New("consumer not found")
)
