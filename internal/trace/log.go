// Package trace provides frame interceptors for inspecting backend traffic.
package trace

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/internal/privacy"
	"github.com/thebtf/lobbywatch/internal/textutil"
)

// LogInterceptor writes every frame to the logger at debug level with
// private sections and credentials redacted.
type LogInterceptor struct {
	logger  zerolog.Logger
	maxSize int
}

// NewLogInterceptor creates a LogInterceptor. Payloads longer than maxSize
// bytes are cut; zero keeps them whole.
func NewLogInterceptor(maxSize int) *LogInterceptor {
	return &LogInterceptor{
		logger:  log.With().Str("component", "trace").Logger(),
		maxSize: maxSize,
	}
}

// Inbound logs a frame received from the backend.
func (l *LogInterceptor) Inbound(raw []byte) {
	l.log(DirectionInbound, raw)
}

// Outbound logs a frame sent to the backend.
func (l *LogInterceptor) Outbound(raw []byte) {
	l.log(DirectionOutbound, raw)
}

func (l *LogInterceptor) log(dir Direction, raw []byte) {
	payload := privacy.Redact(raw)
	if l.maxSize > 0 {
		payload = textutil.CutBytes(payload, l.maxSize)
	}
	typ, sid := peek(raw)
	l.logger.Debug().
		Str("direction", string(dir)).
		Str("type", typ).
		Str("sessionId", sid).
		Int("bytes", len(raw)).
		Bytes("frame", payload).
		Msg("WebSocket frame")
}
