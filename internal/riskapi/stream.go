package riskapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-risk/internal/dashboard"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	maxBackoff  = 30 * time.Second
	readTimeout = 60 * time.Second
)

// Stream follows the monitoring dashboard's WebSocket feed.
type Stream struct{ url string }

// NewStream takes the full ws:// or wss:// URL of the feed, usually
// ws://host:port/dashboard/ws.
func NewStream(u string) Stream { return Stream{u} }

// Watch delivers snapshots until ctx ends, reconnecting with exponential
// backoff. Connection errors go to errs without blocking.
func (s Stream) Watch(ctx context.Context, out chan<- dashboard.Snapshot, errs chan<- error) error {
	backoff := time.Second

	for {
		received, err := s.watchOnce(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = time.Second
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("Dashboard stream lost, reconnecting")
		select {
		case errs <- fmt.Errorf("stream reconnect: %w", err):
		default:
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// watchOnce reports whether any snapshot arrived before the connection
// ended.
func (s Stream) watchOnce(ctx context.Context, out chan<- dashboard.Snapshot) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)

	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	received := false
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("Dashboard stream closed by server")
			}
			return received, fmt.Errorf("read message failed: %w", err)
		}

		var snap dashboard.Snapshot
		if err := json.Unmarshal(msg, &snap); err != nil {
			log.Debug().Err(err).Str("message", string(msg)).Msg("failed to parse snapshot")
			continue
		}
		received = true

		select {
		case out <- snap:
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}
