package pages

import "strings"

// SEO is the head metadata of one page. Open Graph and Twitter tags fall back
// to the page title and description.
type SEO struct {
	Title         string
	Description   string
	CanonicalURL  string
	OGTitle       string
	OGDescription string
	OGType        string
}

func newSEO(baseURL, path, title, description, ogType string) SEO {
	if ogType == "" {
		ogType = "website"
	}
	s := SEO{
		Title:         title,
		Description:   description,
		OGTitle:       title,
		OGDescription: description,
		OGType:        ogType,
	}
	if baseURL != "" {
		s.CanonicalURL = strings.TrimRight(baseURL, "/") + path
	}
	return s
}
