package facade

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/gin-gonic/gin/binding"

	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/port/inbound"
)

var (
	errNotAuthorized = errors.New("shared secret or privileged session required")
	errNotPrivileged = errors.New("session is not privileged")
)

// Broadcaster is the part of the hub the ingress path needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, event hub.Event) (int, error)
}

type broadcastRequest struct {
	Type            string         `json:"type"            binding:"required"`
	Payload         map[string]any `json:"payload"         binding:"required"`
	TargetUserID    string         `json:"targetUserId"`
	TargetAdminOnly bool           `json:"targetAdminOnly"`
}

type NotificationApplicationService struct {
	broadcaster Broadcaster
	secret      []byte
	logger      logger.Logger
}

var _ inbound.NotificationUseCase = (*NotificationApplicationService)(nil)

// NewNotificationApplicationService accepts broadcasts authorized by secret or by a
// privileged session. An empty secret disables the shared-secret path.
func NewNotificationApplicationService(
	broadcaster Broadcaster,
	secret string,
	log logger.Logger,
) *NotificationApplicationService {
	return &NotificationApplicationService{
		broadcaster: broadcaster,
		secret:      []byte(secret),
		logger:      log.WithField("component", "ingress"),
	}
}

// Submit authorizes first, then validates the body, then broadcasts. Authorization
// failures never look at the body.
func (s *NotificationApplicationService) Submit(
	ctx context.Context,
	req inbound.IngressRequest,
) (inbound.Ack, error) {
	via, err := s.authorize(req)
	if err != nil {
		s.logger.Warnf("ingress rejected: %v", err)
		return inbound.Ack{}, &inbound.IngressError{Kind: inbound.KindUnauthorized, Err: err}
	}

	var body broadcastRequest
	if err := binding.JSON.BindBody(req.Body, &body); err != nil {
		s.logger.WithField("auth", via).Warnf("invalid broadcast body: %v", err)
		return inbound.Ack{}, &inbound.IngressError{Kind: inbound.KindInvalidPayload, Err: err}
	}

	event := hub.Event{
		Type:              body.Type,
		Payload:           body.Payload,
		TargetOwnerID:     body.TargetUserID,
		RequirePrivileged: body.TargetAdminOnly,
	}
	delivered, err := s.broadcaster.Broadcast(ctx, event)
	if err != nil {
		s.logger.Errorf("broadcast %q failed: %v", event.Type, err)
		return inbound.Ack{}, &inbound.IngressError{Kind: inbound.KindInternal, Err: err}
	}

	s.logger.WithFields(logger.Fields{
		"auth":         via,
		"type":         event.Type,
		"target_owner": event.TargetOwnerID,
		"privileged":   event.RequirePrivileged,
		"recipients":   delivered,
	}).Info("broadcast accepted")
	return inbound.Ack{Success: true}, nil
}

func (s *NotificationApplicationService) authorize(req inbound.IngressRequest) (string, error) {
	if len(s.secret) > 0 && req.Secret != "" &&
		subtle.ConstantTimeCompare([]byte(req.Secret), s.secret) == 1 {
		return "secret", nil
	}

	if req.Identity == nil {
		return "", errNotAuthorized
	}
	id, err := req.Identity()
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", errNotAuthorized
	}
	if !id.Privileged {
		return "", errNotPrivileged
	}
	return "session", nil
}
