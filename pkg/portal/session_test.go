package portal

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lectern-sync/lectern/pkg/errors"
)

func TestSessionGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ok":
				w.Write([]byte("hello"))
			case "/secret":
				w.WriteHeader(http.StatusForbidden)
			case "/gone":
				w.WriteHeader(http.StatusNotFound)
			case "/expired":
				http.Redirect(w, r, "/login.php", http.StatusFound)
			case "/login.php":
				w.Write([]byte("please log in"))
			}
		}))
	defer server.Close()

	session := NewSession(server.Client(), 0)

	tests := []struct {
		name       string
		path       string
		expAuth    bool
		expStatus  int
		expSuccess bool
	}{
		{
			name:       "OK",
			path:       "/ok",
			expSuccess: true,
		},
		{
			name:    "Forbidden",
			path:    "/secret",
			expAuth: true,
		},
		{
			name:    "LoginRedirect",
			path:    "/expired",
			expAuth: true,
		},
		{
			name:      "NotFound",
			path:      "/gone",
			expStatus: http.StatusNotFound,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			resp, err := session.Get(server.URL + test.path)

			if test.expSuccess {
				assert.NoError(t, err)
				resp.Body.Close()
				return
			}
			if test.expAuth {
				assert.True(t, errors.IsAuthExpired(err))
				return
			}
			assert.Equal(t,
				StatusError{URL: server.URL + test.path, Status: test.expStatus},
				errors.RootCause(err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  bool
	}{
		{
			name: "ServerError",
			err:  StatusError{Status: http.StatusBadGateway},
			exp:  true,
		},
		{
			name: "TooManyRequests",
			err:  StatusError{Status: http.StatusTooManyRequests},
			exp:  true,
		},
		{
			name: "NotFound",
			err:  StatusError{Status: http.StatusNotFound},
			exp:  false,
		},
		{
			name: "WrappedNetworkError",
			err: errors.WithContext(
				&url.Error{Op: "Get", Err: errors.New("connection refused")}, "get"),
			exp: true,
		},
		{
			name: "AuthExpired",
			err:  errors.AuthExpired{},
			exp:  false,
		},
		{
			name: "Other",
			err:  errors.New("boom"),
			exp:  false,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, IsTransient(test.err))
		})
	}
}
