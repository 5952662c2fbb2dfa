// Package payment builds the hosted checkout URL behind "Download Report".
package payment

import (
	"fmt"
	"net/url"

	"verifiedai/internal/platform/config"
	"verifiedai/pkg/domain"
	dErrors "verifiedai/pkg/domain-errors"
)

// referenceParam lets the payment provider hand the job back on reconciliation.
const referenceParam = "client_reference_id"

type Link struct {
	raw string
}

func New(cfg config.Payment) *Link {
	return &Link{raw: cfg.Link}
}

func (l *Link) Configured() bool {
	return l.raw != ""
}

// URLFor returns the payment link tagged with the job ID. Query parameters
// already on the configured link are kept.
func (l *Link) URLFor(jobID domain.JobID) (string, error) {
	if !l.Configured() {
		return "", dErrors.New(dErrors.CodeUnavailable, "payment link is not configured")
	}
	u, err := url.Parse(l.raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("invalid payment link %q", l.raw))
	}
	if jobID != "" {
		q := u.Query()
		q.Set(referenceParam, jobID.String())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
