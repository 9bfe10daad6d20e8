package signal

import (
	"context"
	"encoding/json"
)

func (ctl *SignalWSController) handlePing(context.Context, *session, json.RawMessage) (any, error) {
	return "pong", nil
}
