package pages

import (
	"verifiedai/internal/contact"
	"verifiedai/internal/site"
	"verifiedai/internal/verification"
)

// PageData is what the layout template receives.
type PageData struct {
	Site    site.Config
	SEO     SEO
	Nav     []NavItem
	Theme   string
	Path    string
	Content any
}

type NavItem struct {
	Href   string
	Label  string
	TestID string
	Active bool
}

func navFor(active string) []NavItem {
	items := []NavItem{
		{Href: "/", Label: "Home", TestID: "home"},
		{Href: "/about", Label: "About", TestID: "about"},
		{Href: "/contact", Label: "Contact", TestID: "contact"},
	}
	for i := range items {
		items[i].Active = items[i].Href == active
	}
	return items
}

// HomeView is the Home page projection of a verification session.
type HomeView struct {
	Alert          string
	StatusLine     string
	Output         []string
	Locked         bool
	CanRetryResult bool
	Result         *ResultView
	EmailTo        string
	EmailSent      bool
}

type ResultView struct {
	Verdict     string
	Confidence  string
	Explanation string
	Color       string
}

func newHomeView(s *verification.Session) HomeView {
	v := HomeView{
		Alert:          s.Alert,
		StatusLine:     s.StatusLine,
		Output:         s.OutputLines(),
		Locked:         s.IsComplete(),
		CanRetryResult: s.CanRetryResult(),
		EmailTo:        s.EmailTo,
		EmailSent:      s.EmailSent,
	}
	if s.Result != nil {
		v.Result = &ResultView{
			Verdict:     s.Result.Verdict,
			Confidence:  s.Result.Confidence,
			Explanation: s.Result.Explanation,
			Color:       string(verification.ResultColor(s.Result.Verdict)),
		}
	}
	return v
}

type Principle struct {
	Title  string
	Body   string
	TestID string
}

type AboutView struct {
	Site       site.Config
	Principles []Principle
	Checklist  []string
}

var aboutPrinciples = []Principle{
	{Title: "Evidence first", Body: "Verdicts are derived from the files you upload, never from guesswork.", TestID: "evidence"},
	{Title: "Locked once done", Body: "A finished verification cannot be re-run or altered from the same session.", TestID: "locked"},
	{Title: "Plain answers", Body: "Every result comes with a confidence level and an explanation you can share.", TestID: "plain"},
}

var aboutChecklist = []string{
	"Start a verification and upload evidence",
	"Config served from /api/site-config",
	"Email the report to anyone",
	"Download the full report after payment",
}

type ContactView struct {
	Form       contact.Form
	Validation contact.Validation
	Toast      *contact.Toast
}
