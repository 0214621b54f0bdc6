package lib

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkwell-labs/scribble"
)

func TestSetCookie(t *testing.T) {
	for _, tt := range []struct {
		name       string
		options    Options
		host       string
		cookieName string
		domain     string
	}{
		{
			name:       "basic",
			options:    Options{},
			cookieName: scribble.CookieName,
		},
		{
			name:       "custom name",
			options:    Options{CookieName: "other-session"},
			cookieName: "other-session",
		},
		{
			name:       "domain inkwell.example",
			options:    Options{CookieDomain: "inkwell.example"},
			cookieName: scribble.CookieName,
			domain:     "inkwell.example",
		},
		{
			name:       "dynamic cookie domain",
			options:    Options{CookieDynamicDomain: true},
			host:       "captcha.inkwell.co.uk",
			cookieName: scribble.CookieName,
			domain:     "inkwell.co.uk",
		},
		{
			name:       "dynamic cookie domain ignores ip hosts",
			options:    Options{CookieDynamicDomain: true},
			host:       "127.0.0.1",
			cookieName: scribble.CookieName,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := spawnServer(t, tt.options)
			rw := httptest.NewRecorder()

			srv.SetCookie(rw, CookieOpts{Value: "test", Host: tt.host})

			cookies := rw.Result().Cookies()
			if len(cookies) != 1 {
				t.Fatalf("wanted 1 cookie, got %d cookies", len(cookies))
			}

			ckie := cookies[0]

			if ckie.Name != tt.cookieName {
				t.Errorf("wanted cookie named %q, got cookie named %q", tt.cookieName, ckie.Name)
			}

			if ckie.Domain != tt.domain {
				t.Errorf("wanted cookie domain %q, got %q", tt.domain, ckie.Domain)
			}

			if !ckie.HttpOnly {
				t.Error("session cookie must be HttpOnly")
			}

			if ckie.MaxAge <= 0 {
				t.Errorf("wanted a positive max age, got: %d", ckie.MaxAge)
			}
		})
	}
}

func TestSetCookieSameSite(t *testing.T) {
	for _, tt := range []struct {
		name   string
		secure bool
		want   http.SameSite
	}{
		{name: "insecure", secure: false, want: http.SameSiteLaxMode},
		{name: "secure", secure: true, want: http.SameSiteNoneMode},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := spawnServer(t, Options{CookieSecure: tt.secure})
			rw := httptest.NewRecorder()

			srv.SetCookie(rw, CookieOpts{Value: "test"})

			ckie := rw.Result().Cookies()[0]
			if ckie.SameSite != tt.want {
				t.Errorf("wanted SameSite %v, got %v", tt.want, ckie.SameSite)
			}
			if ckie.Secure != tt.secure {
				t.Errorf("wanted Secure %v, got %v", tt.secure, ckie.Secure)
			}
		})
	}
}

func TestClearCookie(t *testing.T) {
	srv := spawnServer(t, Options{})
	rw := httptest.NewRecorder()

	srv.ClearCookie(rw, CookieOpts{Host: "localhost"})

	cookies := rw.Result().Cookies()

	if len(cookies) != 1 {
		t.Fatalf("wanted 1 cookie, got %d cookies", len(cookies))
	}

	ckie := cookies[0]

	if ckie.Name != scribble.CookieName {
		t.Errorf("wanted cookie named %q, got cookie named %q", scribble.CookieName, ckie.Name)
	}

	if ckie.MaxAge != -1 {
		t.Errorf("wanted cookie max age of -1, got: %d", ckie.MaxAge)
	}
}

func TestClearCookieWithDynamicDomain(t *testing.T) {
	srv := spawnServer(t, Options{CookieDynamicDomain: true})
	rw := httptest.NewRecorder()

	srv.ClearCookie(rw, CookieOpts{Host: "subdomain.inkwell.co.uk"})

	cookies := rw.Result().Cookies()

	if len(cookies) != 1 {
		t.Fatalf("wanted 1 cookie, got %d cookies", len(cookies))
	}

	ckie := cookies[0]

	if ckie.Domain != "inkwell.co.uk" {
		t.Errorf("wanted cookie domain %q, got cookie domain %q", "inkwell.co.uk", ckie.Domain)
	}

	if ckie.MaxAge != -1 {
		t.Errorf("wanted cookie max age of -1, got: %d", ckie.MaxAge)
	}
}

func TestCookiePathFollowsBasePrefix(t *testing.T) {
	t.Cleanup(func() { scribble.BasePrefix = "" })

	srv := spawnServer(t, Options{BasePrefix: "/gate/"})
	rw := httptest.NewRecorder()

	srv.SetCookie(rw, CookieOpts{Value: "test"})

	ckie := rw.Result().Cookies()[0]
	if ckie.Path != "/gate/" {
		t.Errorf("wanted cookie path /gate/, got %q", ckie.Path)
	}
}
