package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/events"
)

// AuditService writes one structured log line per session event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handle)
	a.dispatcher.Subscribe(events.EventSessionStarted, a.handle)
	a.dispatcher.Subscribe(events.EventSessionRefreshed, a.handle)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.handle)
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("subject_id", event.SubjectID),
		zap.Time("at", event.Timestamp),
	}
	switch p := event.Payload.(type) {
	case events.SessionPayload:
		if p.AccessTokenID != "" {
			fields = append(fields, zap.String("access_jti", p.AccessTokenID))
		}
		if p.RefreshTokenID != "" {
			fields = append(fields, zap.String("refresh_jti", p.RefreshTokenID))
		}
		if p.RotatedFrom != "" {
			fields = append(fields, zap.String("rotated_from", p.RotatedFrom))
		}
	case events.RevokedPayload:
		fields = append(fields, zap.Strings("jtis", p.TokenIDs))
	}
	a.logger.Info(string(event.Type), fields...)
	return nil
}
