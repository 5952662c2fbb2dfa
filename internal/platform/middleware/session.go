package middleware

import (
	"log/slog"
	"net/http"

	"verifiedai/internal/platform/config"
	"verifiedai/pkg/domain"
	"verifiedai/pkg/requestcontext"
)

// Session assigns every browser a session ID cookie and exposes it through
// requestcontext.SessionID. Unparseable cookies are replaced with a fresh ID.
// The cookie's Max-Age is renewed on each request, matching the sliding TTL
// the session stores apply on every save.
func Session(cfg config.Session, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			var id domain.SessionID
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				parsed, perr := domain.ParseSessionID(c.Value)
				if perr != nil {
					logger.WarnContext(ctx, "replacing malformed session cookie",
						"request_id", requestcontext.RequestID(ctx),
						"error", perr,
					)
				} else {
					id = parsed
				}
			}
			if id.IsZero() {
				id = domain.NewSessionID()
			}
			// Re-issued on every response so the cookie slides with the store TTL.
			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    id.String(),
				Path:     "/",
				MaxAge:   int(cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, id.String())))
		})
	}
}
