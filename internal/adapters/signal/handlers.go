package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/go-playground/validator/v10"
)

type handlerFunc func(ctl *SignalWSController, ctx context.Context, s *session, data json.RawMessage) (any, error)

type handler struct {
	fn handlerFunc
	// silent handlers never answer, even when the request carries an id
	silent bool
}

var defaultHandlers = map[string]handler{
	"createRoom":               {fn: (*SignalWSController).createRoom},
	"join":                     {fn: (*SignalWSController).handleJoin},
	"exitRoom":                 {fn: (*SignalWSController).handleExit},
	"getMyRoomInfo":            {fn: (*SignalWSController).handleRoomInfo},
	"getRouterRtpCapabilities": {fn: (*SignalWSController).handleRouterCapabilities},
	"createWebRtcTransport":    {fn: (*SignalWSController).handleCreateTransport},
	"connectTransport":         {fn: (*SignalWSController).handleConnectTransport},
	"produce":                  {fn: (*SignalWSController).handleProduce},
	"consume":                  {fn: (*SignalWSController).handleConsume},
	"producerClosed":           {fn: (*SignalWSController).handleProducerClosed, silent: true},
	"getProducers":             {fn: (*SignalWSController).handleGetProducers, silent: true},
	"pauseConsumer":            {fn: (*SignalWSController).handlePauseConsumer},
	"resumeConsumer":           {fn: (*SignalWSController).handleResumeConsumer},
	"ping":                     {fn: (*SignalWSController).handlePing},
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// missingFieldError names a required field the request left out.
type missingFieldError struct {
	field string
}

func (e missingFieldError) Error() string {
	return fmt.Sprintf("%s: %s required", errBadPayload, e.field)
}

func (e missingFieldError) Unwrap() error { return errBadPayload }

// decode unmarshals and validates a request payload. Missing data decodes as
// an empty object.
func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return v, missingFieldError{field: fieldPath(fe.Namespace())}
				}
			}
		}
		return v, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return v, nil
}

// fieldPath drops the payload type name from a validator namespace.
func fieldPath(ns string) string {
	_, path, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return path
}

type createRoomPayload struct {
	RoomID string `json:"room_id" validate:"required,max=36"`
}

type joinPayload struct {
	RoomID string `json:"room_id" validate:"required,max=36"`
	Name   string `json:"name" validate:"required,max=36"`
}

type createTransportPayload struct {
	ForceTCP  bool   `json:"forceTcp"`
	Direction string `json:"direction" validate:"omitempty,oneof=send recv"`
}

// connectTransportPayload carries the client's ICE credentials as well; the
// server runs full ICE and cannot check connectivity without them.
type connectTransportPayload struct {
	TransportID    string                `json:"transport_id" validate:"required"`
	DtlsParameters domain.DtlsParameters `json:"dtlsParameters"`
	IceParameters  *domain.IceParameters `json:"iceParameters" validate:"required"`
}

type producePayload struct {
	TransportID   string               `json:"producerTransportId" validate:"required"`
	Kind          string               `json:"kind" validate:"required,oneof=audio video"`
	MediaType     string               `json:"mediaType" validate:"omitempty,oneof=audio video screen"`
	RtpParameters domain.RtpParameters `json:"rtpParameters"`
}

type consumePayload struct {
	TransportID     string                 `json:"consumerTransportId" validate:"required"`
	ProducerID      string                 `json:"producerId" validate:"required"`
	RtpCapabilities domain.RtpCapabilities `json:"rtpCapabilities"`
}

type producerClosedPayload struct {
	ProducerID string `json:"producer_id" validate:"required"`
}

type consumerPayload struct {
	ConsumerID string `json:"consumer_id" validate:"required"`
}
