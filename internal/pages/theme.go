package pages

import (
	"net/http"
	"strings"
)

const (
	ThemeCookie = "verifiedai_theme"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

func themeOf(r *http.Request) string {
	if c, err := r.Cookie(ThemeCookie); err == nil && c.Value == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// handleTheme flips between light and dark and sends the browser back to the
// page it came from. Only local paths are accepted as the return target.
func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	next := ThemeDark
	if themeOf(r) == ThemeDark {
		next = ThemeLight
	}
	http.SetCookie(w, &http.Cookie{
		Name:     ThemeCookie,
		Value:    next,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, localPath(r.PostFormValue("return")), http.StatusSeeOther)
}

func localPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return "/"
	}
	return p
}
