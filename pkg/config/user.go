package config

import (
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/errors"
)

const (
	// UserConfigPath is the default path to the Lectern user config.
	UserConfigPath = "~/.lectern.yaml"

	// InitialUserConfigVersion is the first version of the Lectern
	// user config. Config files that do not specify a version
	// will default to this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the
	// Lectern user config of the current Lectern binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// Defaults applied when the user config doesn't set a value.
const (
	DefaultLibrary               = "~/lectern"
	DefaultPortalDomain          = "studon.fau.de"
	DefaultCheckIntervalMinutes  = 5
	DefaultConfirmationThreshold = 50
	DefaultRequestSpacingMillis  = 500
)

// User contains the machine-local configuration for Lectern. It is never
// placed inside the library, so it doesn't travel between devices.
type User struct {
	Version string `json:"version,omitempty"`

	// Library is the root directory of the local mirror. Course folders, the
	// shared sync state, and the recent-downloads log all live underneath it.
	Library string `json:"library"`

	// PortalDomain is the domain of the learning portal. Browser cookies are
	// filtered to this domain when building a session.
	PortalDomain string `json:"portalDomain,omitempty"`

	// CheckIntervalMinutes is how often `lectern daily` polls for the
	// browser session to become available.
	CheckIntervalMinutes int `json:"checkIntervalMinutes,omitempty"`

	// ConfirmationThreshold is the number of new files above which a sync
	// asks for confirmation before downloading.
	ConfirmationThreshold int `json:"confirmationThreshold,omitempty"`

	// RequestSpacingMillis is the minimum delay between consecutive requests
	// to the portal.
	RequestSpacingMillis int `json:"requestSpacingMillis,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// CheckInterval returns the poll interval as a duration.
func (u User) CheckInterval() time.Duration {
	return time.Duration(u.CheckIntervalMinutes) * time.Minute
}

// RequestSpacing returns the minimum request spacing as a duration.
func (u User) RequestSpacing() time.Duration {
	return time.Duration(u.RequestSpacingMillis) * time.Millisecond
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path. A missing
// config file is not an error -- the defaults are returned instead, so that
// `lectern get <url>` works without any setup.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return User{}, errors.WithContext(err, "parse")
		}
	}

	applyUserDefaults(&config)

	config.Library, err = homedirExpand(config.Library)
	if err != nil {
		return User{}, errors.WithContext(err, "expand library path")
	}

	// Evaluate relative paths relative to the config path.
	if !filepath.IsAbs(config.Library) {
		config.Library = filepath.Join(filepath.Dir(path), config.Library)
	}
	return config, nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath gets the path to the user's global Lectern configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}

func applyUserDefaults(config *User) {
	if config.Library == "" {
		config.Library = DefaultLibrary
	}
	if config.PortalDomain == "" {
		config.PortalDomain = DefaultPortalDomain
	}
	if config.CheckIntervalMinutes == 0 {
		config.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	if config.ConfirmationThreshold == 0 {
		config.ConfirmationThreshold = DefaultConfirmationThreshold
	}
	if config.RequestSpacingMillis == 0 {
		config.RequestSpacingMillis = DefaultRequestSpacingMillis
	}
}
