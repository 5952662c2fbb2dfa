// Package service drives the Home page verification flow for one browser
// session at a time. Every operation loads the session, applies one user
// action and saves the result, so the page can be re-rendered from the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"verifiedai/internal/verification"
	"verifiedai/internal/verification/client"
	"verifiedai/internal/verification/metrics"
	"verifiedai/pkg/domain"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/email"
	"verifiedai/pkg/platform/sentinel"
	"verifiedai/pkg/requestcontext"
)

// API is the external verification service.
type API interface {
	CreateJob(ctx context.Context, trade string) (domain.JobID, error)
	UploadEvidence(ctx context.Context, id domain.JobID, ev verification.Evidence) error
	FetchResult(ctx context.Context, id domain.JobID) (*verification.Result, error)
}

// Mailer delivers report emails.
type Mailer interface {
	Ready() error
	Send(ctx context.Context, params map[string]string) error
}

type Store interface {
	Load(ctx context.Context, id string) (*verification.Session, error)
	Save(ctx context.Context, session *verification.Session) error
}

// PaymentLinker builds the hosted payment URL for a finished job.
type PaymentLinker interface {
	URLFor(jobID domain.JobID) (string, error)
}

const (
	reportSender      = "VerifiedAI"
	defaultStepBudget = 75 * time.Second
	saveTimeout       = 5 * time.Second
)

type Service struct {
	api     API
	mailer  Mailer
	store   Store
	payment PaymentLinker
	trade   string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	budget  time.Duration
	flight  singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithStepBudget bounds how long one step may run, external calls and result
// polling included.
func WithStepBudget(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithTrade sets the trade label sent when a job is created.
func WithTrade(trade string) Option {
	return func(s *Service) {
		if strings.TrimSpace(trade) != "" {
			s.trade = trade
		}
	}
}

func New(api API, mailer Mailer, store Store, payment PaymentLinker, opts ...Option) *Service {
	s := &Service{
		api:     api,
		mailer:  mailer,
		store:   store,
		payment: payment,
		trade:   "General",
		logger:  slog.Default(),
		now:     time.Now,
		budget:  defaultStepBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View returns the session as the page should render it. A pending alert is
// returned once and then cleared.
func (s *Service) View(ctx context.Context, sessionID string) (*verification.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Alert == "" {
		return sess, nil
	}
	shown := sess.Clone()
	sess.Alert = ""
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return shown, nil
}

// Start creates a new verification job. Starting again before completion
// replaces the previous job; a complete session is returned unchanged.
func (s *Service) Start(ctx context.Context, sessionID string) (*verification.Session, error) {
	return s.once(ctx, sessionID, "start", func(ctx context.Context) (*verification.Session, error) {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.IsComplete() {
			return sess, nil
		}

		id, err := s.api.CreateJob(ctx, s.trade)
		if err != nil {
			s.logFailure(ctx, "create verification failed", sess, err)
			s.metrics.IncrementStep("start", string(client.GetCategory(err)))
			sess.StatusLine = verification.StatusCreateFailed
			return s.fail(ctx, sess, apiError(err, "verification could not be created"))
		}

		sess.JobID = id
		sess.Stage = verification.StageCreated
		sess.StatusLine = verification.StatusCreated
		sess.EvidenceUploaded = false
		sess.Result = nil
		sess.Alert = ""
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		s.metrics.IncrementStep("start", "ok")
		s.logger.InfoContext(ctx, "verification created",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sess.ID,
			"job_id", id.String(),
		)
		return sess, nil
	})
}

// Upload sends the evidence file and then reads back the result.
func (s *Service) Upload(ctx context.Context, sessionID string, ev *verification.Evidence) (*verification.Session, error) {
	return s.once(ctx, sessionID, "upload", func(ctx context.Context) (*verification.Session, error) {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.IsComplete() {
			return sess, nil
		}
		if !sess.HasJob() {
			sess.Alert = verification.AlertStartFirst
			return s.fail(ctx, sess, dErrors.New(dErrors.CodeInvalidState, verification.AlertStartFirst))
		}
		if ev.Empty() {
			sess.Alert = verification.AlertSelectFile
			return s.fail(ctx, sess, dErrors.New(dErrors.CodeValidation, verification.AlertSelectFile))
		}

		sess.Stage = verification.StageUploading
		sess.StatusLine = verification.StatusUploading
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}

		if err := s.api.UploadEvidence(ctx, sess.JobID, *ev); err != nil {
			s.logFailure(ctx, "evidence upload failed", sess, err)
			s.metrics.IncrementStep("upload", string(client.GetCategory(err)))
			sess.Stage = verification.StageCreated
			sess.StatusLine = verification.StatusUploadFailed
			return s.fail(ctx, sess, apiError(err, "evidence could not be uploaded"))
		}
		s.metrics.IncrementStep("upload", "ok")

		sess.EvidenceUploaded = true
		sess.StatusLine = verification.StatusGenerating
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return s.fetchResult(ctx, sess)
	})
}

// RetryResult reads the result again for a job whose evidence was uploaded
// but whose result fetch failed.
func (s *Service) RetryResult(ctx context.Context, sessionID string) (*verification.Session, error) {
	return s.once(ctx, sessionID, "result", func(ctx context.Context) (*verification.Session, error) {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.IsComplete() {
			return sess, nil
		}
		if !sess.HasJob() {
			sess.Alert = verification.AlertStartFirst
			return s.fail(ctx, sess, dErrors.New(dErrors.CodeInvalidState, verification.AlertStartFirst))
		}
		if !sess.CanRetryResult() {
			sess.Alert = verification.AlertSelectFile
			return s.fail(ctx, sess, dErrors.New(dErrors.CodeInvalidState, "evidence has not been uploaded"))
		}

		sess.StatusLine = verification.StatusGenerating
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return s.fetchResult(ctx, sess)
	})
}

func (s *Service) fetchResult(ctx context.Context, sess *verification.Session) (*verification.Session, error) {
	res, err := s.api.FetchResult(ctx, sess.JobID)
	if err != nil {
		s.logFailure(ctx, "result fetch failed", sess, err)
		s.metrics.IncrementStep("result", string(client.GetCategory(err)))
		sess.StatusLine = verification.StatusUploadFailed
		return s.fail(ctx, sess, apiError(err, "result could not be retrieved"))
	}

	sess.Result = res
	sess.Stage = verification.StageComplete
	sess.StatusLine = verification.StatusComplete
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	color := verification.ResultColor(res.Verdict)
	s.metrics.IncrementStep("result", "ok")
	s.metrics.IncrementVerdict(string(color))
	s.logger.InfoContext(ctx, "verification complete",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sess.ID,
		"job_id", sess.JobID.String(),
		"verdict", res.Verdict,
		"color", string(color),
	)
	return sess, nil
}

// PaymentURL returns where "Download Report" sends the browser.
func (s *Service) PaymentURL(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !sess.IsComplete() {
		sess.Alert = verification.AlertNotComplete
		_, err := s.fail(ctx, sess, dErrors.New(dErrors.CodeInvalidState, verification.AlertNotComplete))
		return "", err
	}
	link, err := s.payment.URLFor(sess.JobID)
	if err != nil {
		s.logger.WarnContext(ctx, "payment link unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return "", err
	}
	return link, nil
}

// SendReport emails the verification report to the given address. After one
// successful send the session refuses further sends.
func (s *Service) SendReport(ctx context.Context, sessionID, to string) (*verification.Session, error) {
	return s.once(ctx, sessionID, "email", func(ctx context.Context) (*verification.Session, error) {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.EmailSent {
			return sess, nil
		}

		to = strings.TrimSpace(to)
		sess.EmailTo = to
		if sess.Result == nil || !sess.HasJob() || !email.IsEmailLike(to) {
			sess.Alert = verification.AlertInvalidEmail
			return s.fail(ctx, sess, dErrors.New(dErrors.CodeValidation, verification.AlertInvalidEmail))
		}

		if err := s.mailer.Ready(); err != nil {
			s.logFailure(ctx, "email delivery not configured", sess, err)
			s.metrics.IncrementStep("email", "not_configured")
			sess.Alert = verification.AlertEmailFailed
			return s.fail(ctx, sess, dErrors.Wrap(err, dErrors.CodeUnavailable, "email delivery is not configured"))
		}
		if err := s.mailer.Send(ctx, ReportParams(sess, to, s.now())); err != nil {
			s.logFailure(ctx, "report email failed", sess, err)
			s.metrics.IncrementStep("email", "failed")
			sess.Alert = verification.AlertEmailFailed
			return s.fail(ctx, sess, dErrors.Wrap(err, dErrors.CodeBadGateway, "report email could not be sent"))
		}

		sess.EmailSent = true
		sess.Alert = ""
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		s.metrics.IncrementStep("email", "ok")
		s.logger.InfoContext(ctx, "report emailed",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sess.ID,
			"job_id", sess.JobID.String(),
		)
		return sess, nil
	})
}

// ReportParams builds the email template parameters for a finished session.
func ReportParams(sess *verification.Session, to string, now time.Time) map[string]string {
	message := fmt.Sprintf(
		"Verification Report\n\nVerification ID: %s\nResult: %s\nConfidence: %s\n\nExplanation:\n%s\n\nGenerated: %s",
		sess.JobID, sess.Result.Verdict, sess.Result.Confidence, sess.Result.Explanation,
		now.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	return map[string]string{
		"to_email":  to,
		"to_name":   email.DeriveNameFromEmail(to),
		"from_name": reportSender,
		"message":   message,
	}
}

// once collapses concurrent calls of the same step for the same session.
// The step runs on a context detached from the callers' cancellation and
// bounded by the step budget. Each caller waits only as long as its own
// context allows and receives its own copy of the resulting session.
func (s *Service) once(ctx context.Context, sessionID, step string, fn func(ctx context.Context) (*verification.Session, error)) (*verification.Session, error) {
	ch := s.flight.DoChan(sessionID+":"+step, func() (any, error) {
		work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.budget)
		defer cancel()
		return fn(work)
	})
	select {
	case res := <-ch:
		if res.Shared {
			s.logger.DebugContext(ctx, "duplicate submission collapsed",
				"request_id", requestcontext.RequestID(ctx),
				"session_id", sessionID,
				"step", step,
			)
		}
		sess, _ := res.Val.(*verification.Session)
		return sess.Clone(), res.Err
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "caller left before step finished",
			"request_id", requestcontext.RequestID(ctx),
			"session_id", sessionID,
			"step", step,
		)
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, step+" still running")
	}
}

func (s *Service) load(ctx context.Context, id string) (*verification.Session, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing session")
	}
	sess, err := s.store.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return verification.NewSession(id, s.now()), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return sess, nil
}

// save persists sess. A step that ran out of budget still records its
// failure status, on a short context of its own.
func (s *Service) save(ctx context.Context, sess *verification.Session) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer cancel()
	}
	sess.UpdatedAt = s.now()
	if err := s.store.Save(ctx, sess); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return nil
}

// fail saves the session with its updated status or alert and returns it
// together with cause.
func (s *Service) fail(ctx context.Context, sess *verification.Session, cause error) (*verification.Session, error) {
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, cause
}

func (s *Service) logFailure(ctx context.Context, msg string, sess *verification.Session, err error) {
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sess.ID,
		"job_id", sess.JobID.String(),
		"category", string(client.GetCategory(err)),
		"error", err,
	)
}

// apiError maps a client failure onto a domain error code.
func apiError(err error, msg string) error {
	switch client.GetCategory(err) {
	case client.ErrorNotConfigured:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case client.ErrorTimeout:
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case client.ErrorRateLimited:
		return dErrors.Wrap(err, dErrors.CodeTooManyRequests, msg)
	case client.ErrorInternal:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeBadGateway, msg)
	}
}
