package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"verifiedai/internal/verification"
	"verifiedai/internal/verification/client"
	"verifiedai/internal/verification/service/mocks"
	"verifiedai/internal/verification/store"
	"verifiedai/pkg/domain"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/platform/sentinel"
	"verifiedai/pkg/testutil"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const sessionID = "5f1b7a52-3c8e-4f39-9a51-2f4f0c3e9d10"

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	api     *mocks.MockAPI
	mailer  *mocks.MockMailer
	payment *mocks.MockPaymentLinker
	store   *store.InMemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.api = mocks.NewMockAPI(ctrl)
	s.mailer = mocks.NewMockMailer(ctrl)
	s.payment = mocks.NewMockPaymentLinker(ctrl)
	s.store = store.NewInMemory(time.Hour)
	s.service = New(s.api, s.mailer, s.store, s.payment,
		WithLogger(testutil.DiscardLogger()),
		WithClock(func() time.Time { return fixedNow }),
	)
}

var goodEvidence = &verification.Evidence{Filename: "invoice.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}

var supported = &verification.Result{Verdict: "SUPPORTED", Confidence: "0.92", Explanation: "Invoice matches the claim."}

// complete drives a session to the complete stage.
func (s *ServiceSuite) complete() {
	s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
	s.api.EXPECT().UploadEvidence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.api.EXPECT().FetchResult(gomock.Any(), gomock.Any()).Return(supported, nil)
	_, err := s.service.Start(s.ctx, sessionID)
	s.Require().NoError(err)
	_, err = s.service.Upload(s.ctx, sessionID, goodEvidence)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestStart() {
	s.Run("creates a job and awaits evidence", func() {
		s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)

		sess, err := s.service.Start(s.ctx, sessionID)
		s.Require().NoError(err)
		s.Equal(verification.StageCreated, sess.Stage)
		s.Equal(verification.StatusCreated, sess.StatusLine)
		s.Equal("job-1", sess.JobID.String())
	})

	s.Run("failure only changes the status line", func() {
		s.api.EXPECT().CreateJob(gomock.Any(), "General").
			Return(domain.JobID(""), &client.APIError{Category: client.ErrorOutage, Operation: "create_job"})

		sess, err := s.service.Start(s.ctx, sessionID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadGateway))
		s.Equal(verification.StatusCreateFailed, sess.StatusLine)
		s.Equal("job-1", sess.JobID.String())
		s.Equal(verification.StageCreated, sess.Stage)
	})

	s.Run("unconfigured api is unavailable", func() {
		s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID(""), client.ErrNotConfigured)

		_, err := s.service.Start(s.ctx, "other-session")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestStartUsesConfiguredTrade() {
	svc := New(s.api, s.mailer, s.store, s.payment, WithTrade("Plumbing"), WithLogger(testutil.DiscardLogger()))
	s.api.EXPECT().CreateJob(gomock.Any(), "Plumbing").Return(domain.JobID("job-7"), nil)

	_, err := svc.Start(s.ctx, sessionID)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestUploadGuards() {
	s.Run("without a job it alerts once and calls nothing", func() {
		sess, err := s.service.Upload(s.ctx, sessionID, goodEvidence)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Equal(verification.AlertStartFirst, sess.Alert)

		shown, err := s.service.View(s.ctx, sessionID)
		s.Require().NoError(err)
		s.Equal(verification.AlertStartFirst, shown.Alert)

		again, err := s.service.View(s.ctx, sessionID)
		s.Require().NoError(err)
		s.Empty(again.Alert)
	})

	s.Run("without a file it asks for one", func() {
		s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
		_, err := s.service.Start(s.ctx, sessionID)
		s.Require().NoError(err)

		sess, err := s.service.Upload(s.ctx, sessionID, &verification.Evidence{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(verification.AlertSelectFile, sess.Alert)

		sess, err = s.service.Upload(s.ctx, sessionID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(verification.AlertSelectFile, sess.Alert)
	})
}

func (s *ServiceSuite) TestFullFlow() {
	t := s.T()
	testutil.Given(t, "a started verification", func(t *testing.T) {
		s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
		_, err := s.service.Start(s.ctx, sessionID)
		require.NoError(t, err)

		testutil.When(t, "evidence is uploaded", func(t *testing.T) {
			s.api.EXPECT().UploadEvidence(gomock.Any(), domain.JobID("job-1"), *goodEvidence).Return(nil)
			s.api.EXPECT().FetchResult(gomock.Any(), domain.JobID("job-1")).Return(supported, nil)

			sess, err := s.service.Upload(s.ctx, sessionID, goodEvidence)
			require.NoError(t, err)

			testutil.Then(t, "the session is complete with the result", func(t *testing.T) {
				assert.True(t, sess.IsComplete())
				assert.Equal(t, verification.StatusComplete, sess.StatusLine)
				assert.Equal(t, supported, sess.Result)
				assert.Equal(t, verification.ColorGreen, verification.ResultColor(sess.Result.Verdict))
			})

			testutil.Then(t, "start and upload are locked", func(t *testing.T) {
				again, err := s.service.Start(s.ctx, sessionID)
				require.NoError(t, err)
				assert.Equal(t, sess, again)

				again, err = s.service.Upload(s.ctx, sessionID, goodEvidence)
				require.NoError(t, err)
				assert.Equal(t, sess, again)
			})
		})
	})
}

func (s *ServiceSuite) TestUploadFailure() {
	s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
	_, err := s.service.Start(s.ctx, sessionID)
	s.Require().NoError(err)

	s.api.EXPECT().UploadEvidence(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&client.APIError{Category: client.ErrorTimeout, Operation: "upload_evidence"})

	sess, err := s.service.Upload(s.ctx, sessionID, goodEvidence)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(verification.StatusUploadFailed, sess.StatusLine)
	s.Equal(verification.StageCreated, sess.Stage)
	s.False(sess.EvidenceUploaded)
	s.False(sess.CanRetryResult())
}

func (s *ServiceSuite) TestResultFailureThenRetry() {
	s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
	s.api.EXPECT().UploadEvidence(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	s.api.EXPECT().FetchResult(gomock.Any(), gomock.Any()).
		Return(nil, &client.APIError{Category: client.ErrorNotFound, Operation: "fetch_result"})

	_, err := s.service.Start(s.ctx, sessionID)
	s.Require().NoError(err)
	sess, err := s.service.Upload(s.ctx, sessionID, goodEvidence)
	s.Require().Error(err)
	s.Equal(verification.StatusUploadFailed, sess.StatusLine)
	s.True(sess.CanRetryResult())

	s.api.EXPECT().FetchResult(gomock.Any(), gomock.Any()).Return(supported, nil)
	sess, err = s.service.RetryResult(s.ctx, sessionID)
	s.Require().NoError(err)
	s.True(sess.IsComplete())
}

func (s *ServiceSuite) TestRetryResultRequiresUploadedEvidence() {
	sess, err := s.service.RetryResult(s.ctx, sessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(verification.AlertStartFirst, sess.Alert)

	s.api.EXPECT().CreateJob(gomock.Any(), "General").Return(domain.JobID("job-1"), nil)
	_, err = s.service.Start(s.ctx, sessionID)
	s.Require().NoError(err)

	sess, err = s.service.RetryResult(s.ctx, sessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(verification.AlertSelectFile, sess.Alert)
}

func (s *ServiceSuite) TestSendReport() {
	s.Run("requires a result", func() {
		sess, err := s.service.SendReport(s.ctx, sessionID, "ada@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(verification.AlertInvalidEmail, sess.Alert)
	})

	s.complete()

	s.Run("rejects malformed addresses", func() {
		sess, err := s.service.SendReport(s.ctx, sessionID, "not-an-email")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(verification.AlertInvalidEmail, sess.Alert)
		s.False(sess.EmailSent)
	})

	s.Run("delivery failure keeps the send enabled", func() {
		s.mailer.EXPECT().Ready().Return(nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("status 500"))

		sess, err := s.service.SendReport(s.ctx, sessionID, "ada.lovelace@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeBadGateway))
		s.Equal(verification.AlertEmailFailed, sess.Alert)
		s.False(sess.EmailSent)
	})

	s.Run("sends the report once", func() {
		s.mailer.EXPECT().Ready().Return(nil)
		s.mailer.EXPECT().Send(gomock.Any(), map[string]string{
			"to_email":  "ada.lovelace@example.com",
			"to_name":   "Ada Lovelace",
			"from_name": "VerifiedAI",
			"message": "Verification Report\n\nVerification ID: job-1\nResult: SUPPORTED\nConfidence: 0.92\n\n" +
				"Explanation:\nInvoice matches the claim.\n\nGenerated: 2025-06-01 12:00:00 UTC",
		}).Return(nil)

		sess, err := s.service.SendReport(s.ctx, sessionID, " ada.lovelace@example.com ")
		s.Require().NoError(err)
		s.True(sess.EmailSent)
		s.Empty(sess.Alert)

		again, err := s.service.SendReport(s.ctx, sessionID, "someone@else.com")
		s.Require().NoError(err)
		s.True(again.EmailSent)
		s.Equal("ada.lovelace@example.com", again.EmailTo)
	})
}

func (s *ServiceSuite) TestSendReportNotConfigured() {
	s.complete()
	s.mailer.EXPECT().Ready().Return(errors.New("email not configured"))

	sess, err := s.service.SendReport(s.ctx, sessionID, "ada@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(verification.AlertEmailFailed, sess.Alert)
}

func (s *ServiceSuite) TestPaymentURL() {
	s.Run("requires a finished verification", func() {
		_, err := s.service.PaymentURL(s.ctx, sessionID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.complete()

	s.Run("returns the link for the job", func() {
		s.payment.EXPECT().URLFor(domain.JobID("job-1")).Return("https://pay.example/x?client_reference_id=job-1", nil)

		link, err := s.service.PaymentURL(s.ctx, sessionID)
		s.Require().NoError(err)
		s.Equal("https://pay.example/x?client_reference_id=job-1", link)
	})

	s.Run("propagates a missing link", func() {
		s.payment.EXPECT().URLFor(gomock.Any()).Return("", dErrors.New(dErrors.CodeUnavailable, "payment link not configured"))

		_, err := s.service.PaymentURL(s.ctx, sessionID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *ServiceSuite) TestConcurrentStartIsCollapsed() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.api.EXPECT().CreateJob(gomock.Any(), "General").DoAndReturn(func(context.Context, string) (domain.JobID, error) {
		close(entered)
		<-release
		return "job-1", nil
	}).Times(1)

	var wg sync.WaitGroup
	results := make([]*verification.Session, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.service.Start(s.ctx, sessionID)
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.service.Start(s.ctx, sessionID)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Require().NotNil(results[0])
	s.Require().NotNil(results[1])
	s.Equal("job-1", results[0].JobID.String())
	s.Equal(results[0], results[1])
	s.NotSame(results[0], results[1])
}

func (s *ServiceSuite) TestAbandonedFirstClickDoesNotFailTheSecond() {
	entered := make(chan struct{})
	release := make(chan struct{})
	s.api.EXPECT().CreateJob(gomock.Any(), "General").DoAndReturn(func(ctx context.Context, _ string) (domain.JobID, error) {
		close(entered)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "job-1", nil
		}
	}).Times(1)

	firstCtx, cancelFirst := context.WithCancel(s.ctx)
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.service.Start(firstCtx, sessionID)
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		sess *verification.Session
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		sess, err := s.service.Start(s.ctx, sessionID)
		second <- outcome{sess, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := <-firstErr
	s.Require().Error(err)
	s.Equal(dErrors.CodeTimeout, dErrors.CodeOf(err))

	close(release)
	got := <-second
	s.Require().NoError(got.err)
	s.Equal("job-1", got.sess.JobID.String())
	s.Equal(verification.StatusCreated, got.sess.StatusLine)

	stored, err := s.store.Load(s.ctx, sessionID)
	s.Require().NoError(err)
	s.Equal("job-1", stored.JobID.String())
	s.Equal(verification.StageCreated, stored.Stage)
}

func TestStepBudgetBoundsExternalCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	api.EXPECT().CreateJob(gomock.Any(), "General").DoAndReturn(func(ctx context.Context, _ string) (domain.JobID, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "step runs under a deadline")
		<-ctx.Done()
		return "", ctx.Err()
	})
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Load(gomock.Any(), sessionID).Return(nil, sentinel.ErrNotFound)
	var saved *verification.Session
	st.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, sess *verification.Session) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		saved = sess.Clone()
		return nil
	})
	svc := New(api, mocks.NewMockMailer(ctrl), st, mocks.NewMockPaymentLinker(ctrl),
		WithLogger(testutil.DiscardLogger()),
		WithStepBudget(20*time.Millisecond),
	)

	start := time.Now()
	sess, err := svc.Start(context.Background(), sessionID)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, sess)
	assert.Equal(t, verification.StatusCreateFailed, sess.StatusLine)
	require.NotNil(t, saved, "failure recorded after the budget ran out")
	assert.Equal(t, verification.StatusCreateFailed, saved.StatusLine)
}

func TestLoadFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Load(gomock.Any(), sessionID).Return(nil, errors.New("connection refused"))

	svc := New(mocks.NewMockAPI(ctrl), mocks.NewMockMailer(ctrl), st, mocks.NewMockPaymentLinker(ctrl),
		WithLogger(testutil.DiscardLogger()))

	_, err := svc.View(context.Background(), sessionID)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}

func TestReportParams(t *testing.T) {
	sess := &verification.Session{JobID: "42", Result: &verification.Result{Verdict: "NOT SUPPORTED", Confidence: "0.3", Explanation: "No match."}}
	params := ReportParams(sess, "grace@navy.mil", time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)))

	assert.Equal(t, "Grace", params["to_name"])
	assert.Contains(t, params["message"], "Verification ID: 42\nResult: NOT SUPPORTED\nConfidence: 0.3")
	assert.Contains(t, params["message"], "Generated: 2025-01-02 02:04:05 UTC")
}
