package service

import (
	"context"
	"log/slog"

	"verifiedai/internal/contact"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/requestcontext"
)

// Mailer delivers contact messages.
type Mailer interface {
	Ready() error
	Send(ctx context.Context, params map[string]string) error
}

type Service struct {
	mailer Mailer
	logger *slog.Logger
}

func New(mailer Mailer, logger *slog.Logger) *Service {
	return &Service{mailer: mailer, logger: logger}
}

// Submit validates the form and forwards it. The returned toast is what the
// visitor sees; err carries the reason for callers that need a status code.
func (s *Service) Submit(ctx context.Context, form contact.Form) (contact.Toast, contact.Validation, error) {
	v := contact.Validate(form)
	if !v.AllOK {
		return contact.ToastCheckForm, v, dErrors.New(dErrors.CodeValidation, "name, email and message are required")
	}

	if err := s.mailer.Ready(); err != nil {
		s.logFailure(ctx, err)
		return contact.ToastFailed, v, dErrors.Wrap(err, dErrors.CodeUnavailable, "email delivery is not configured")
	}
	f := form.Trimmed()
	err := s.mailer.Send(ctx, map[string]string{
		"from_name":  f.Name,
		"from_email": f.Email,
		"message":    f.Message,
	})
	if err != nil {
		s.logFailure(ctx, err)
		return contact.ToastFailed, v, dErrors.Wrap(err, dErrors.CodeBadGateway, "message could not be sent")
	}

	s.logger.InfoContext(ctx, "contact message sent",
		"request_id", requestcontext.RequestID(ctx),
	)
	return contact.ToastSent, v, nil
}

func (s *Service) logFailure(ctx context.Context, err error) {
	s.logger.ErrorContext(ctx, "contact message not delivered",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
