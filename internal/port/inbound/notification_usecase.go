package inbound

import (
	"context"
	"errors"
	"fmt"

	"go-notification-hub/internal/infrastructure/auth"
)

type IngressErrorKind string

const (
	KindUnauthorized   IngressErrorKind = "unauthorized"
	KindInvalidPayload IngressErrorKind = "invalid_payload"
	KindInternal       IngressErrorKind = "internal"
)

// IngressError is the typed outcome of a rejected broadcast submission.
type IngressError struct {
	Kind IngressErrorKind
	Err  error
}

func (e *IngressError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *IngressError) Unwrap() error { return e.Err }

// KindOf returns the kind of an IngressError in err's chain, or KindInternal.
func KindOf(err error) IngressErrorKind {
	var ie *IngressError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindInternal
}

// IngressRequest carries one broadcast submission. Identity is only consulted when
// Secret does not authorize the call.
type IngressRequest struct {
	Secret   string
	Identity func() (*auth.Identity, error)
	Body     []byte
}

type Ack struct {
	Success bool `json:"success"`
}

type NotificationUseCase interface {
	Submit(ctx context.Context, req IngressRequest) (Ack, error)
}
