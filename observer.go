package soauth

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/credentials"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/log"
)

// LifecycleObserver records every credential transition as a metric, an
// audit event and a log line.
type LifecycleObserver struct {
	logger log.Logger
	audit  *audit.Logger
}

var _ credentials.Observer = (*LifecycleObserver)(nil)

// NewLifecycleObserver creates an observer. A nil audit logger disables
// audit events.
func NewLifecycleObserver(logger log.Logger, auditLogger *audit.Logger) *LifecycleObserver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &LifecycleObserver{logger: logger, audit: auditLogger}
}

func (o *LifecycleObserver) Transitioned(ctx context.Context, ev credentials.TransitionEvent) {
	metrics.TransitionsTotal.WithLabelValues(ev.Op.String(), metrics.Result(ev.Err)).Inc()

	fields := log.Fields{
		"operation":     ev.Op.String(),
		"from":          ev.From.String(),
		"to":            ev.To.String(),
		"client":        ev.Record.ClientID,
		"credential_id": ev.Record.ID,
	}
	if ev.Err != nil {
		o.logger.Warn(ctx, "Credential transition failed", fields, log.Fields{"error": ev.Err.Error()})
	} else {
		o.logger.Info(ctx, "Credential transition", fields)
	}

	if o.audit == nil {
		return
	}

	event := audit.Event{
		Action:       ev.Op.String(),
		Client:       ev.Record.ClientID,
		CredentialID: ev.Record.ID,
		From:         ev.From.String(),
		To:           ev.To.String(),
		ClientIP:     ev.Record.ClientIP,
		Success:      ev.Err == nil,
	}
	if ev.Err != nil {
		event.Error = ev.Err.Error()
	}
	o.audit.Log(event)
}

func clientAuthFailed() {
	metrics.ClientAuthFailuresTotal.Inc()
}
