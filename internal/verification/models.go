// Package verification models the Home page flow: create a job with the
// external verification service, attach evidence, read back the verdict.
//
// The flow is strictly one-shot per browser session: once a result has been
// received the session is complete and start/upload become no-ops.
package verification

import (
	"strings"
	"time"

	"verifiedai/pkg/domain"
)

// Stage is the position of a session in the flow.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageCreated   Stage = "created"
	StageUploading Stage = "evidence-uploading"
	StageComplete  Stage = "complete"
)

// User-visible status lines. Failures are deliberately generic.
const (
	StatusCreating       = "Creating verification..."
	StatusCreated        = "Verification created. Awaiting evidence."
	StatusCreateFailed   = "Error creating verification."
	StatusUploading      = "Uploading and locking evidence..."
	StatusGenerating     = "Evidence locked. Generating result..."
	StatusComplete       = "Verification complete."
	StatusUploadFailed   = "Error uploading evidence."
	StatusAwaitingOutput = "Waiting for evidence"
)

// One-shot alerts shown on the next page render.
const (
	AlertStartFirst   = "Start a verification first"
	AlertSelectFile   = "Select a file"
	AlertInvalidEmail = "Enter a valid email address"
	AlertEmailFailed  = "Failed to send email. Please try again."
	AlertNotComplete  = "Finish the verification first"
)

// Result is the verdict returned by the external service, displayed as-is.
type Result struct {
	Verdict     string `json:"verdict"`
	Confidence  string `json:"confidence"`
	Explanation string `json:"explanation"`
}

// Color is the display color of a verdict.
type Color string

const (
	ColorOrange Color = "orange"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
)

// ResultColor maps a verdict to its display color. "PARTIALLY" wins over
// "SUPPORTED" so "PARTIALLY SUPPORTED" renders orange.
func ResultColor(verdict string) Color {
	switch {
	case strings.Contains(verdict, "PARTIALLY"):
		return ColorOrange
	case strings.Contains(verdict, "SUPPORTED"):
		return ColorGreen
	default:
		return ColorRed
	}
}

// Evidence is one uploaded file.
type Evidence struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether no file was selected.
func (e *Evidence) Empty() bool {
	return e == nil || e.Filename == ""
}

// Session is the server-side state of one browser's Home page.
type Session struct {
	ID               string       `json:"id"`
	JobID            domain.JobID `json:"job_id,omitempty"`
	Stage            Stage        `json:"stage"`
	StatusLine       string       `json:"status_line,omitempty"`
	Alert            string       `json:"alert,omitempty"`
	EvidenceUploaded bool         `json:"evidence_uploaded,omitempty"`
	Result           *Result      `json:"result,omitempty"`
	EmailTo          string       `json:"email_to,omitempty"`
	EmailSent        bool         `json:"email_sent,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewSession returns an idle session.
func NewSession(id string, now time.Time) *Session {
	return &Session{ID: id, Stage: StageIdle, UpdatedAt: now}
}

// IsComplete reports whether a result has been received. Complete sessions
// reject further start and upload actions.
func (s *Session) IsComplete() bool {
	return s.Stage == StageComplete && s.Result != nil
}

// HasJob reports whether a verification job has been created.
func (s *Session) HasJob() bool {
	return s.JobID != ""
}

// CanRetryResult reports whether evidence reached the service but no result
// was read back yet, so the result can be fetched again without re-uploading.
func (s *Session) CanRetryResult() bool {
	return s.HasJob() && s.EvidenceUploaded && !s.IsComplete()
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return &c
}

// OutputLines is the job summary shown under the status line.
func (s *Session) OutputLines() []string {
	if !s.HasJob() {
		return nil
	}
	lines := []string{"Verification ID: " + s.JobID.String()}
	if !s.EvidenceUploaded && !s.IsComplete() {
		lines = append(lines, "Status: "+StatusAwaitingOutput)
	}
	return lines
}
