// Package contact validates and forwards the Contact page form.
package contact

import (
	"strings"
	"unicode/utf16"

	"verifiedai/pkg/email"
)

const (
	minNameLen    = 2
	minMessageLen = 10
)

// Form is what the visitor typed.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Trimmed returns the form with surrounding whitespace removed from every field.
func (f Form) Trimmed() Form {
	return Form{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Message: strings.TrimSpace(f.Message),
	}
}

// Validation is the per-field result shown next to each input.
type Validation struct {
	NameOK    bool `json:"name_ok"`
	EmailOK   bool `json:"email_ok"`
	MessageOK bool `json:"message_ok"`
	AllOK     bool `json:"all_ok"`
}

// Validate checks the trimmed form. Lengths are counted in UTF-16 code units,
// the way the browser counts them, so a single emoji is two.
func Validate(f Form) Validation {
	t := f.Trimmed()
	v := Validation{
		NameOK:    utf16Len(t.Name) >= minNameLen,
		EmailOK:   email.IsEmailLike(t.Email),
		MessageOK: utf16Len(t.Message) >= minMessageLen,
	}
	v.AllOK = v.NameOK && v.EmailOK && v.MessageOK
	return v
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func (v Validation) NameHint() string {
	if v.NameOK {
		return "Looks good."
	}
	return "Add at least 2 characters."
}

func (v Validation) EmailHint() string {
	if v.EmailOK {
		return "Valid email format."
	}
	return "Use a real email (e.g., name@domain.com)."
}

func (v Validation) MessageHint() string {
	if v.MessageOK {
		return "Great—clear enough to act on."
	}
	return "Add at least 10 characters."
}

// Hints bundles the three hint strings for JSON clients.
type Hints struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (v Validation) Hints() Hints {
	return Hints{Name: v.NameHint(), Email: v.EmailHint(), Message: v.MessageHint()}
}

// Toast is the transient notification shown after a submit.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Destructive bool   `json:"destructive"`
}

var (
	ToastCheckForm = Toast{
		Title:       "Check the form",
		Description: "Please provide a name, a valid email, and a message (10+ characters).",
		Destructive: true,
	}
	ToastSent = Toast{
		Title:       "Message sent!",
		Description: "Thank you for reaching out. We'll get back to you soon.",
	}
	ToastFailed = Toast{
		Title:       "Failed to send",
		Description: "Something went wrong. Please try again.",
		Destructive: true,
	}
)
