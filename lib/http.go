package lib

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/inkwell-labs/scribble"
	"golang.org/x/net/publicsuffix"
)

var domainMatchRegexp = regexp.MustCompile(`^((xn--)?[a-z0-9]+(-[a-z0-9]+)*\.)+[a-z]{2,}$`)

type CookieOpts struct {
	Value  string
	Host   string
	Path   string
	Name   string
	Expiry time.Duration
}

func (s *Server) cookieDomain(host string) string {
	domain := s.opts.CookieDomain
	if s.opts.CookieDynamicDomain && domainMatchRegexp.MatchString(host) {
		if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			domain = etld
		}
	}
	return domain
}

func (s *Server) cookiePath(path string) string {
	if path != "" {
		return path
	}
	return strings.TrimSuffix(scribble.BasePrefix, "/") + "/"
}

// sameSite is None only when the cookie can legally carry it.
func (s *Server) sameSite() http.SameSite {
	if s.opts.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (s *Server) SetCookie(w http.ResponseWriter, cookieOpts CookieOpts) {
	var name = s.opts.CookieName
	if cookieOpts.Name != "" {
		name = cookieOpts.Name
	}

	if cookieOpts.Expiry == 0 {
		cookieOpts.Expiry = s.cookieExpiry()
	}

	http.SetCookie(w, &http.Cookie{
		Name:        name,
		Value:       cookieOpts.Value,
		Expires:     time.Now().Add(cookieOpts.Expiry),
		MaxAge:      int(cookieOpts.Expiry.Seconds()),
		SameSite:    s.sameSite(),
		Domain:      s.cookieDomain(cookieOpts.Host),
		Secure:      s.opts.CookieSecure,
		Partitioned: s.opts.CookiePartitioned,
		HttpOnly:    true,
		Path:        s.cookiePath(cookieOpts.Path),
	})
}

func (s *Server) ClearCookie(w http.ResponseWriter, cookieOpts CookieOpts) {
	var name = s.opts.CookieName
	if cookieOpts.Name != "" {
		name = cookieOpts.Name
	}

	http.SetCookie(w, &http.Cookie{
		Name:        name,
		Value:       "",
		MaxAge:      -1,
		Expires:     time.Now().Add(-1 * time.Minute),
		SameSite:    s.sameSite(),
		Partitioned: s.opts.CookiePartitioned,
		Domain:      s.cookieDomain(cookieOpts.Host),
		Secure:      s.opts.CookieSecure,
		HttpOnly:    true,
		Path:        s.cookiePath(cookieOpts.Path),
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
