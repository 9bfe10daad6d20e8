package signal

import (
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	errBadPayload  = errors.New("bad_payload")
	errRateLimited = errors.New("too many rooms created, try again later")
	errUnknownType = errors.New("unknown message type")
	errInternal    = errors.New("internal error")
)

// wireError is the error text a client sees.
func wireError(err error) string {
	var missing missingFieldError
	switch {
	case errors.As(err, &missing):
		return missing.Error()
	case errors.Is(err, app.ErrRoomExists):
		return "already exists"
	case errors.Is(err, app.ErrRoomNotFound):
		return "Room does not exist"
	case errors.Is(err, app.ErrNotInRoom):
		return "not currently in a room"
	case errors.Is(err, errBadPayload):
		return errBadPayload.Error()
	case errors.Is(err, errInternal):
		return errInternal.Error()
	}
	return err.Error()
}

// errorType is the error_type label of the operation counter.
func errorType(err error) string {
	switch {
	case errors.Is(err, app.ErrRoomExists):
		return "room_exists"
	case errors.Is(err, app.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, app.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, app.ErrRouterNotReady):
		return "router_not_ready"
	case errors.Is(err, app.ErrTransportNotFound):
		return "transport_not_found"
	case errors.Is(err, app.ErrProducerExists):
		return "producer_exists"
	case errors.Is(err, app.ErrConsumerNotFound):
		return "consumer_not_found"
	case errors.Is(err, errBadPayload),
		errors.Is(err, domain.ErrNameEmpty),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrRoomIDEmpty),
		errors.Is(err, domain.ErrRoomIDTooLong):
		return "bad_payload"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, errInternal):
		return "internal"
	}
	return "engine"
}
