package handler

import (
	"strings"

	"verifiedai/internal/verification"
)

// ResultResponse is a verdict plus its display color.
type ResultResponse struct {
	Verdict     string `json:"verdict"`
	Confidence  string `json:"confidence"`
	Explanation string `json:"explanation"`
	Color       string `json:"color"`
}

// StateResponse is the JSON view of a session.
type StateResponse struct {
	Stage          string          `json:"stage"`
	StatusLine     string          `json:"status_line,omitempty"`
	Output         string          `json:"output,omitempty"`
	JobID          string          `json:"job_id,omitempty"`
	Alert          string          `json:"alert,omitempty"`
	Locked         bool            `json:"locked"`
	CanRetryResult bool            `json:"can_retry_result"`
	Result         *ResultResponse `json:"result,omitempty"`
	EmailTo        string          `json:"email_to,omitempty"`
	EmailSent      bool            `json:"email_sent"`
}

// ErrorStateResponse carries the error envelope together with the state the
// failure left behind, so clients can render the status line without a second call.
type ErrorStateResponse struct {
	Error            string         `json:"error"`
	ErrorDescription string         `json:"error_description,omitempty"`
	State            *StateResponse `json:"state"`
}

type PaymentResponse struct {
	URL string `json:"url"`
}

type emailReportRequest struct {
	Email string `json:"email"`
}

func (r *emailReportRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return nil
}

func toStateResponse(s *verification.Session) *StateResponse {
	resp := &StateResponse{
		Stage:          string(s.Stage),
		StatusLine:     s.StatusLine,
		Output:         strings.Join(s.OutputLines(), "\n"),
		JobID:          s.JobID.String(),
		Alert:          s.Alert,
		Locked:         s.IsComplete(),
		CanRetryResult: s.CanRetryResult(),
		EmailTo:        s.EmailTo,
		EmailSent:      s.EmailSent,
	}
	if s.Result != nil {
		resp.Result = &ResultResponse{
			Verdict:     s.Result.Verdict,
			Confidence:  s.Result.Confidence,
			Explanation: s.Result.Explanation,
			Color:       string(verification.ResultColor(s.Result.Verdict)),
		}
	}
	return resp
}
