package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"verifiedai/internal/contact"
	"verifiedai/internal/contact/handler/mocks"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, testutil.DiscardLogger()).Register(r)
	return r, svc
}

func TestHandleSubmit(t *testing.T) {
	valid := contact.Validation{NameOK: true, EmailOK: true, MessageOK: true, AllOK: true}

	t.Run("sent", func(t *testing.T) {
		r, svc := newTestRouter(t)
		form := contact.Form{Name: "Al", Email: "a@b.com", Message: "1234567890"}
		svc.EXPECT().Submit(gomock.Any(), form).Return(contact.ToastSent, valid, nil)

		rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/api/contact", form))

		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[SubmitResponse](t, rr)
		assert.True(t, resp.Sent)
		assert.Equal(t, "Message sent!", resp.Toast.Title)
		assert.Equal(t, "Looks good.", resp.Hints.Name)
	})

	t.Run("invalid form returns hints", func(t *testing.T) {
		r, svc := newTestRouter(t)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(contact.ToastCheckForm, contact.Validation{EmailOK: true}, dErrors.New(dErrors.CodeValidation, "invalid"))

		rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/api/contact",
			map[string]string{"name": "A", "email": "a@b.com", "message": "hi"}))

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		resp := testutil.UnmarshalResponse[SubmitResponse](t, rr)
		assert.False(t, resp.Sent)
		assert.Equal(t, "Check the form", resp.Toast.Title)
		assert.Equal(t, "Add at least 2 characters.", resp.Hints.Name)
		assert.Equal(t, "Add at least 10 characters.", resp.Hints.Message)
	})

	t.Run("delivery failure is a bad gateway", func(t *testing.T) {
		r, svc := newTestRouter(t)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).
			Return(contact.ToastFailed, valid, dErrors.New(dErrors.CodeBadGateway, "message could not be sent"))

		rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/api/contact",
			contact.Form{Name: "Al", Email: "a@b.com", Message: "1234567890"}))

		testutil.AssertStatus(t, rr, http.StatusBadGateway)
		assert.Equal(t, "Failed to send", testutil.UnmarshalResponse[SubmitResponse](t, rr).Toast.Title)
	})

	t.Run("malformed json", func(t *testing.T) {
		r, _ := newTestRouter(t)
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("{not json"))

		rr := testutil.DoRequest(r, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.Equal(t, "bad_request", testutil.UnmarshalErrorResponse(t, rr)["error"])
	})
}
