// Package client talks to the external verification service.
//
// The service exposes three endpoints:
//
//	POST /jobs {"trade": ...}        -> {"id": ...}
//	POST /evidence/{id} (multipart)  -> acknowledgement, ignored
//	GET  /results/{id}               -> {"verdict", "confidence", "explanation"}
//
// Job creation and uploads are sent exactly once: retrying either could create
// duplicate jobs or attach evidence twice. The result endpoint is polled with
// exponential backoff while the service reports the result as pending.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"verifiedai/internal/platform/config"
	"verifiedai/internal/verification"
	"verifiedai/internal/verification/metrics"
	"verifiedai/pkg/domain"
	"verifiedai/pkg/platform/circuit"
	"verifiedai/pkg/requestcontext"
)

const (
	opCreateJob      = "create_job"
	opUploadEvidence = "upload_evidence"
	opFetchResult    = "fetch_result"

	maxResponseBytes = 1 << 20
	requestIDHeader  = "X-Request-Id"

	tracerName = "verifiedai/internal/verification/client"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	results *retryablehttp.Client
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	// nil means the global propagator
	propagator propagation.TextMapPropagator
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; retry attempts of the result poller are logged through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithHTTPClient replaces the transport-level client used for every call.
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

// WithPropagator sets how trace context is written into outgoing headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) {
		c.propagator = p
	}
}

// New builds a client for cfg.BaseURL. It returns ErrNotConfigured when the
// base URL is empty; callers fall back to Disabled.
func New(cfg config.Verification, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("verification-api", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	attempts := cfg.ResultAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.ResultBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.http
	rc.RetryMax = attempts - 1
	rc.RetryWaitMin = backoff
	rc.RetryWaitMax = backoff * 8
	rc.CheckRetry = resultPending
	rc.Backoff = cappedBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = c.logger
	c.results = rc

	return c, nil
}

// resultPending retries while the result is not ready yet or the service is briefly unavailable.
func resultPending(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNotFound, http.StatusTooEarly, http.StatusTooManyRequests:
		return true, nil
	case http.StatusNotImplemented:
		return false, nil
	}
	return resp.StatusCode >= 500, nil
}

// cappedBackoff is retryablehttp's exponential backoff with Retry-After
// honored only up to max.
func cappedBackoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	d := retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	if d > max {
		return max
	}
	return d
}

type createJobRequest struct {
	Trade string `json:"trade"`
}

// CreateJob opens a verification job for the given trade label.
func (c *Client) CreateJob(ctx context.Context, trade string) (domain.JobID, error) {
	var id domain.JobID
	err := c.call(ctx, opCreateJob, func(ctx context.Context) error {
		body, err := json.Marshal(createJobRequest{Trade: trade})
		if err != nil {
			return newAPIError(ErrorInternal, opCreateJob, "encode request", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
		if err != nil {
			return newAPIError(ErrorInternal, opCreateJob, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		payload, err := c.send(ctx, opCreateJob, req)
		if err != nil {
			return err
		}
		id, err = parseJobResponse(payload)
		if err != nil {
			return newAPIError(ErrorBadData, opCreateJob, "invalid job response", err)
		}
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("verification.job_id", id.String()))
		return nil
	})
	return id, err
}

// UploadEvidence attaches one file to the job as multipart field "files".
func (c *Client) UploadEvidence(ctx context.Context, id domain.JobID, ev verification.Evidence) error {
	return c.call(ctx, opUploadEvidence, func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("verification.job_id", id.String()),
			attribute.Int("verification.evidence_bytes", len(ev.Data)),
		)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(ev.Filename)))
		contentType := ev.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return newAPIError(ErrorInternal, opUploadEvidence, "build multipart body", err)
		}
		if _, err := part.Write(ev.Data); err != nil {
			return newAPIError(ErrorInternal, opUploadEvidence, "build multipart body", err)
		}
		if err := mw.Close(); err != nil {
			return newAPIError(ErrorInternal, opUploadEvidence, "build multipart body", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobURL("evidence", id), &buf)
		if err != nil {
			return newAPIError(ErrorInternal, opUploadEvidence, "build request", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		_, err = c.send(ctx, opUploadEvidence, req)
		return err
	})
}

// FetchResult reads the verdict for a job, polling while it is pending.
func (c *Client) FetchResult(ctx context.Context, id domain.JobID) (*verification.Result, error) {
	var result *verification.Result
	err := c.call(ctx, opFetchResult, func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("verification.job_id", id.String()))

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.jobURL("results", id), nil)
		if err != nil {
			return newAPIError(ErrorInternal, opFetchResult, "build request", err)
		}
		c.decorate(ctx, req.Request)

		resp, err := c.results.Do(req)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return classifyTransportError(opFetchResult, err)
		}
		payload, err := readBody(resp)
		if err != nil {
			return classifyTransportError(opFetchResult, err)
		}
		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusAccepted {
				e := newAPIError(ErrorNotFound, opFetchResult, "result still pending", nil)
				e.StatusCode = resp.StatusCode
				return e
			}
			return classifyStatus(opFetchResult, resp.StatusCode, payload)
		}

		var r verification.Result
		if err := json.Unmarshal(payload, &r); err != nil {
			return newAPIError(ErrorBadData, opFetchResult, "invalid result payload", err)
		}
		if strings.TrimSpace(r.Verdict) == "" {
			return newAPIError(ErrorBadData, opFetchResult, "result has no verdict", nil)
		}
		result = &r
		return nil
	})
	return result, err
}

// call wraps one external operation with the breaker, a span and latency metrics.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		err := newAPIError(ErrorOutage, op, "circuit open", nil)
		c.metrics.ObserveAPILatency(op, string(err.Category), 0)
		return err
	}

	ctx, span := c.tracer.Start(ctx, "verification."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = string(GetCategory(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	c.metrics.ObserveAPILatency(op, outcome, time.Since(start))
	c.recordBreaker(ctx, err)
	return err
}

func (c *Client) recordBreaker(ctx context.Context, err error) {
	var ae *APIError
	if err != nil && errors.As(err, &ae) && ae.Transient() {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "verification api circuit opened",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			c.metrics.IncrementBreaker(circuit.StateOpen.String())
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "verification api circuit closed",
			"request_id", requestcontext.RequestID(ctx),
		)
		c.metrics.IncrementBreaker(circuit.StateClosed.String())
	}
}

func (c *Client) send(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	c.decorate(ctx, req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	payload, err := readBody(resp)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(op, resp.StatusCode, payload)
	}
	return payload, nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}
	p := c.propagator
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	p.Inject(ctx, propagation.HeaderCarrier(req.Header))
}

func (c *Client) jobURL(resource string, id domain.JobID) string {
	return c.baseURL + "/" + resource + "/" + url.PathEscape(id.String())
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// parseJobResponse accepts both string and numeric IDs.
func parseJobResponse(body []byte) (domain.JobID, error) {
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	raw := bytes.TrimSpace(resp.ID)
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing id")
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("id is neither string nor number: %w", err)
		}
		s = n.String()
	}
	return domain.ParseJobID(s)
}

// Disabled stands in for Client when no verification API is configured.
type Disabled struct{}

func (Disabled) CreateJob(context.Context, string) (domain.JobID, error) {
	return "", ErrNotConfigured
}

func (Disabled) UploadEvidence(context.Context, domain.JobID, verification.Evidence) error {
	return ErrNotConfigured
}

func (Disabled) FetchResult(context.Context, domain.JobID) (*verification.Result, error) {
	return nil, ErrNotConfigured
}
