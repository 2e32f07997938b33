package http

import (
	"context"
	"net/http"

	"medquiz-service/internal/auth"
)

const sessionCookie = "medquiz_session"

type sessionKey struct{}

// withSession decodes the session cookie into the request context.
// A missing or invalid cookie yields a fresh guest session that is only written when changed.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.codec.NewSession()
		if c, err := r.Cookie(sessionCookie); err == nil {
			if decoded, err := a.codec.Decode(c.Value); err == nil {
				s = decoded
			}
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentSession(r *http.Request) auth.WebSession {
	s, _ := r.Context().Value(sessionKey{}).(auth.WebSession)
	return s
}

func (a *API) saveSession(w http.ResponseWriter, s auth.WebSession) error {
	value, expires, err := a.codec.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (a *API) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
