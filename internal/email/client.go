// Package email delivers messages through the hosted EmailJS REST API.
//
// The site never talks SMTP. A message is a set of template parameters that
// EmailJS substitutes into a template kept in the EmailJS dashboard.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"verifiedai/internal/platform/config"
	"verifiedai/internal/platform/metrics"
	"verifiedai/pkg/requestcontext"
)

const tracerName = "verifiedai/internal/email"

// ErrNotConfigured is returned by Ready and Send when the service ID,
// template ID or public key is missing.
var ErrNotConfigured = errors.New("email delivery is not configured")

// DeliveryError is a non-2xx answer from the email API.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("email api returned status %d: %s", e.StatusCode, e.Body)
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg     config.Email
	http    *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// New is the explicit initialization step. It never fails; an incomplete
// configuration surfaces through Ready.
func New(cfg config.Email, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports whether messages can be sent.
func (c *Client) Ready() error {
	if c.cfg.APIURL == "" || c.cfg.ServiceID == "" || c.cfg.TemplateID == "" || c.cfg.PublicKey == "" {
		return ErrNotConfigured
	}
	return nil
}

// Sender labels messages of one kind ("contact", "report") in metrics and logs.
func (c *Client) Sender(kind string) *Sender {
	return &Sender{client: c, kind: kind}
}

// Sender is a Client bound to a message kind.
type Sender struct {
	client *Client
	kind   string
}

func (s *Sender) Ready() error {
	return s.client.Ready()
}

func (s *Sender) Send(ctx context.Context, params map[string]string) error {
	return s.client.send(ctx, s.kind, params)
}

// Send delivers one message with the configured service and template.
func (c *Client) Send(ctx context.Context, params map[string]string) error {
	return c.send(ctx, "generic", params)
}

func (c *Client) send(ctx context.Context, kind string, params map[string]string) (err error) {
	ctx, span := c.tracer.Start(ctx, "email.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("email.kind", kind)),
	)
	defer func() {
		outcome := "sent"
		switch {
		case errors.Is(err, ErrNotConfigured):
			outcome = "not_configured"
		case err != nil:
			outcome = "failed"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		c.metrics.IncrementEmail(kind, outcome)
		span.End()
	}()

	if err := c.Ready(); err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{
		ServiceID:      c.cfg.ServiceID,
		TemplateID:     c.cfg.TemplateID,
		UserID:         c.cfg.PublicKey,
		AccessToken:    c.cfg.AccessToken,
		TemplateParams: params,
	})
	if err != nil {
		return fmt.Errorf("encode email request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "email request failed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"error", err,
		)
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := &DeliveryError{StatusCode: resp.StatusCode, Body: string(raw)}
		c.logger.ErrorContext(ctx, "email rejected",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"status", resp.StatusCode,
			"error", derr,
		)
		return derr
	}
	c.logger.InfoContext(ctx, "email sent",
		"request_id", requestcontext.RequestID(ctx),
		"kind", kind,
	)
	return nil
}
