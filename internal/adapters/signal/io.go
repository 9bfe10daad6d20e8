package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// request is a client message. A request without an id gets no response.
type request struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (r request) wantsReply() bool {
	return len(r.ID) > 0 && string(r.ID) != "null"
}

type response struct {
	ID    json.RawMessage `json:"id"`
	Type  string          `json:"type"`
	Data  any             `json:"data"`
	Error string          `json:"error,omitempty"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("readPump closing")
		cancel()
		ctl.Orch.OnDisconnect(s.peerID)
		s.conn.Close()
		metrics.ConnectionClosed()
	}()

	c := s.conn.conn
	c.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("readPump read error")
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(ctl.opts.pongWait()))
		ctl.handleSignal(ctx, s, data)
	}
}

// handleSignal runs one request to completion. Requests of a connection are
// handled in arrival order.
func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	h, ok := ctl.handlers[req.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", req.Type).Msg("unknown signal")
		metrics.ServiceOperationCounter.WithLabelValues("unknown", "error", "unknown_type").Inc()
		if req.wantsReply() {
			ctl.reply(s, req, nil, errUnknownType)
		}
		return
	}

	out, err := ctl.run(ctx, h, s, req)
	if err != nil {
		metrics.ServiceOperationCounter.WithLabelValues(req.Type, "error", errorType(err)).Inc()
		log.Warn().
			Err(err).
			Str("module", "signal").
			Str("peer_id", string(s.peerID)).
			Str("type", req.Type).
			Msg("request failed")
	} else {
		metrics.ServiceOperationCounter.WithLabelValues(req.Type, "ok", "").Inc()
	}
	if req.wantsReply() && !h.silent {
		ctl.reply(s, req, out, err)
	}
}

// run never lets a handler panic take the connection down.
func (ctl *SignalWSController) run(ctx context.Context, h handler, s *session, req request) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "signal").
				Str("peer_id", string(s.peerID)).
				Str("type", req.Type).
				Interface("panic", r).
				Msg("handler panic")
			out, err = nil, fmt.Errorf("%w: %v", errInternal, r)
		}
	}()
	return h.fn(ctl, ctx, s, req.Data)
}

func (ctl *SignalWSController) reply(s *session, req request, data any, err error) {
	resp := response{ID: req.ID, Type: req.Type, Data: data}
	if err != nil {
		resp.Data = nil
		resp.Error = wireError(err)
	}
	ctl.sendJSON(s.conn, resp)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}
