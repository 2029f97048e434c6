package portal

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	// Registers the "sqlite3" driver used to read Firefox's cookie store.
	_ "github.com/mattn/go-sqlite3"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// FirefoxProvider builds portal sessions from the cookies of a local
// Firefox profile. The user logs into the portal in their browser; Lectern
// borrows the session instead of implementing the login flow.
type FirefoxProvider struct {
	// Domain filters which cookies are loaded into the session.
	Domain string

	// Spacing is the minimum delay between portal requests for sessions
	// built by this provider.
	Spacing time.Duration

	// ProfilesDir overrides the default Firefox profile location. Used in
	// tests.
	ProfilesDir string
}

// Available reports whether Firefox is currently running. Cookies are only
// fresh while the user has an active browser session, so this doubles as
// the "user is logged in somewhere" signal the daily controller waits for.
func (p *FirefoxProvider) Available() bool {
	if err := exec.Command("pgrep", "-x", "firefox").Run(); err == nil {
		return true
	}
	// Some distributions name the binary differently.
	return exec.Command("pgrep", "-x", "firefox-bin").Run() == nil
}

// Session loads the profile's cookies for the portal domain and wraps them
// in an authenticated Session.
func (p *FirefoxProvider) Session() (*Session, error) {
	dbPath, err := p.findCookieDB()
	if err != nil {
		return nil, errors.WithContext(err, "locate cookie store")
	}

	cookies, err := p.readCookies(dbPath)
	if err != nil {
		return nil, errors.WithContext(err, "read cookies")
	}
	if len(cookies) == 0 {
		return nil, errors.NewFriendlyError(
			"No cookies for %q were found in your Firefox profile.\n"+
				"Please log into the portal in Firefox and try again.", p.Domain)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.WithContext(err, "create cookie jar")
	}
	jar.SetCookies(&url.URL{Scheme: "https", Host: p.Domain}, cookies)

	log.WithField("cookies", len(cookies)).Debug("Loaded Firefox session")
	return NewSession(&http.Client{Jar: jar}, p.Spacing), nil
}

// findCookieDB locates the cookies.sqlite of the most recently used Firefox
// profile.
func (p *FirefoxProvider) findCookieDB() (string, error) {
	profilesDir := p.ProfilesDir
	if profilesDir == "" {
		expanded, err := homedir.Expand("~/.mozilla/firefox")
		if err != nil {
			return "", errors.WithContext(err, "expand home")
		}
		profilesDir = expanded
	}

	matches, err := filepath.Glob(filepath.Join(profilesDir, "*", "cookies.sqlite"))
	if err != nil {
		return "", errors.WithContext(err, "glob profiles")
	}
	if len(matches) == 0 {
		return "", errors.NewFriendlyError(
			"No Firefox profile with a cookie store was found under %q.\n"+
				"Lectern reuses your browser login, so Firefox must be set up "+
				"and logged into the portal.", profilesDir)
	}

	// Prefer the most recently modified store: that's the profile the user
	// actually browses with.
	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]).After(modTime(matches[j]))
	})
	return matches[0], nil
}

func modTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// readCookies copies the cookie store aside before opening it: Firefox
// keeps the live database locked while it's running, which is exactly when
// we want to read it.
func (p *FirefoxProvider) readCookies(dbPath string) ([]*http.Cookie, error) {
	tmp, err := copyToTemp(dbPath)
	if err != nil {
		return nil, errors.WithContext(err, "copy cookie store")
	}
	defer os.Remove(tmp)

	db, err := sql.Open("sqlite3", tmp)
	if err != nil {
		return nil, errors.WithContext(err, "open cookie store")
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT name, value, host, path, isSecure, expiry FROM moz_cookies "+
			"WHERE host LIKE ?", "%"+p.Domain)
	if err != nil {
		return nil, errors.WithContext(err, "query cookies")
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var name, value, host, path string
		var isSecure int
		var expiry int64
		if err := rows.Scan(&name, &value, &host, &path, &isSecure, &expiry); err != nil {
			return nil, errors.WithContext(err, "scan cookie")
		}

		if expiry != 0 && time.Unix(expiry, 0).Before(time.Now()) {
			continue
		}

		cookies = append(cookies, &http.Cookie{
			Name:   name,
			Value:  value,
			Domain: strings.TrimPrefix(host, "."),
			Path:   path,
			Secure: isSecure != 0,
		})
	}
	return cookies, rows.Err()
}

func copyToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "lectern-cookies-*.sqlite")
	if err != nil {
		return "", err
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
