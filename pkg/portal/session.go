// Package portal talks to the learning portal: it builds authenticated
// sessions from browser cookies, parses folder listings, and walks course
// trees. Nothing outside this package inspects browser internals or portal
// HTML.
package portal

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lectern-sync/lectern/pkg/errors"
)

const userAgent = "Mozilla/5.0"

// CredentialProvider yields authenticated portal sessions. The sync engine
// treats it as a black box that either produces a valid session or fails.
type CredentialProvider interface {
	// Available reports whether a session could plausibly be built right
	// now (e.g. the browser holding the cookies is running). It must be
	// cheap: the daily controller polls it.
	Available() bool

	// Session builds an authenticated session.
	Session() (*Session, error)
}

// Session is an authenticated HTTP client for the portal. All requests made
// through it -- listings and downloads alike -- share one rate limiter that
// enforces a minimum spacing between consecutive requests. The spacing is a
// correctness requirement of the portal, not an optimization; it is applied
// regardless of network latency.
type Session struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewSession wraps an HTTP client with the given minimum request spacing.
func NewSession(client *http.Client, spacing time.Duration) *Session {
	if spacing <= 0 {
		spacing = time.Millisecond
	}
	return &Session{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}
}

// Get fetches the URL. Non-2xx responses are converted into typed errors so
// that callers can classify them: a login redirect or 401/403 becomes
// AuthExpired, everything else a StatusError.
func (s *Session) Get(pageURL string) (*http.Response, error) {
	// The process is killed externally rather than cancelled in-band, so
	// there is nothing to hook the rate-limit wait up to.
	if err := s.limiter.Wait(context.Background()); err != nil {
		return nil, errors.WithContext(err, "rate limit")
	}

	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.WithContext(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.WithContext(err, "get")
	}

	if isLoginRedirect(resp) ||
		resp.StatusCode == http.StatusUnauthorized ||
		resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, errors.AuthExpired{}
	}

	if resp.StatusCode != http.StatusOK {
		status := resp.StatusCode
		resp.Body.Close()
		return nil, StatusError{URL: pageURL, Status: status}
	}
	return resp, nil
}

// isLoginRedirect reports whether the request was bounced to the portal's
// login page. The portal answers 200 for expired sessions, so the final URL
// after redirects is the only reliable signal.
func isLoginRedirect(resp *http.Response) bool {
	if resp.Request == nil || resp.Request.URL == nil {
		return false
	}
	final := strings.ToLower(resp.Request.URL.String())
	return strings.Contains(final, "login") || strings.Contains(final, "force_login")
}

// StatusError represents a non-OK HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (err StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", err.URL, err.Status)
}

// IsTransient reports whether the error is worth retrying: network blips
// and server-side errors are, everything else (bad listings, rejected
// sessions, local write failures) is not.
func IsTransient(err error) bool {
	switch root := errors.RootCause(err).(type) {
	case StatusError:
		return root.Status == http.StatusTooManyRequests || root.Status >= 500
	case *url.Error:
		return true
	case net.Error:
		return true
	}
	return false
}

