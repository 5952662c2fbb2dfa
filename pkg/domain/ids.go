package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "verifiedai/pkg/domain-errors"
)

// SessionID identifies one browser session of the site.
type SessionID uuid.UUID

// JobID is the opaque identifier the external verification service issues.
type JobID string

const maxJobIDLength = 128

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// NewSessionID returns a random session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID parses a cookie value into a SessionID. Empty and nil UUIDs are rejected.
func ParseSessionID(s string) (SessionID, error) {
	if len(s) > 64 {
		return SessionID{}, dErrors.New(dErrors.CodeBadRequest, "session id too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid session id")
	}
	if u == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid session id")
	}
	return SessionID(u), nil
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the ID is unset.
func (id SessionID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

// ParseJobID validates an identifier returned by the verification service.
// Job IDs end up in URL paths, so only a conservative character set is accepted.
func ParseJobID(s string) (JobID, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", dErrors.New(dErrors.CodeValidation, "job id is empty")
	case len(s) > maxJobIDLength:
		return "", dErrors.New(dErrors.CodeValidation, "job id too long")
	case s == "." || s == "..":
		return "", dErrors.New(dErrors.CodeValidation, "job id is not a path segment")
	case !jobIDPattern.MatchString(s):
		return "", dErrors.New(dErrors.CodeValidation, "job id contains unsupported characters")
	}
	return JobID(s), nil
}

func (id JobID) String() string {
	return string(id)
}
