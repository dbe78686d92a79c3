package audit

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is one audited credential lifecycle action.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Service      string    `json:"service"`
	Action       string    `json:"action"`
	Client       string    `json:"client,omitempty"`
	CredentialID int64     `json:"credential_id,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// Logger writes audit events as JSON lines.
type Logger struct {
	out     zerolog.Logger
	service string
}

// New creates an audit logger writing to w.
func New(w io.Writer, service string) *Logger {
	return &Logger{out: zerolog.New(w), service: service}
}

// Default writes to stdout.
var Default = New(os.Stdout, "shadow-oauth")

// Log records ev, filling in the id, timestamp and service when missing.
func (l *Logger) Log(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Service == "" {
		ev.Service = l.service
	}

	entry, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit event to JSON")
		l.out.Error().
			Str("action", ev.Action).
			Str("client", ev.Client).
			Int64("credential_id", ev.CredentialID).
			Bool("success", ev.Success).
			Msg("Audit Log (fallback)")
		return
	}

	l.out.Log().RawJSON("audit_event", entry).Msg("")
}
