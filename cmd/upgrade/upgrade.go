package upgrade

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"runtime"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lectern-sync/lectern/cmd/util"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/version"
)

var (
	releaseEndpoint = "https://api.github.com/repos/lectern-sync/lectern/releases/latest"
	binaryName      = "lectern"
	fs              = afero.NewOsFs()
)

// New creates a new `upgrade` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the local Lectern binary to the latest release.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run() error {
	latest, tarballURL, err := getLatestRelease()
	if err != nil {
		return errors.WithContext(err, "check for updates")
	}

	fmt.Printf("Your Lectern binary is at version: %s\n", version.Version)
	fmt.Printf("The latest release is: %s\n\n", latest.String())

	shouldInstall, err := promptShouldInstall(latest)
	if err != nil {
		return errors.WithContext(err, "prompt")
	} else if !shouldInstall {
		return nil
	}

	fmt.Printf("Downloading Lectern release: %s\n", latest.String())
	if err := downloadRelease(tarballURL); err != nil {
		return errors.WithContext(err, "download release")
	}
	fmt.Println("Release successfully downloaded.")
	fmt.Println()

	installedPath, err := os.Executable()
	if err != nil {
		return errors.WithContext(err, "get executable path")
	}

	fmt.Printf("Lectern has been downloaded to the current working directory.\n"+
		"Please execute the following command in your shell to install it:\n\n"+
		"\t cp ./%s %s \n\n", binaryName, installedPath)
	return nil
}

// getLatestRelease asks the release API for the newest version and the
// download URL of the tarball for this platform.
func getLatestRelease() (*goversion.Version, string, error) {
	resp, err := http.Get(releaseEndpoint)
	if err != nil {
		return nil, "", errors.WithContext(err, "get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.New("server responded with %s", resp.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
		Assets  []struct {
			Name        string `json:"name"`
			DownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, "", errors.WithContext(err, "decode release")
	}

	latest, err := goversion.NewVersion(release.TagName)
	if err != nil {
		return nil, "", errors.WithContext(err, "parse release version")
	}

	wanted := fmt.Sprintf("%s_%s_%s.tar.gz", binaryName, runtime.GOOS, runtime.GOARCH)
	for _, asset := range release.Assets {
		if asset.Name == wanted {
			return latest, asset.DownloadURL, nil
		}
	}
	return nil, "", errors.New("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
}

func promptShouldInstall(latest *goversion.Version) (bool, error) {
	if version.Version == version.EmptyValue {
		// Development builds have no comparable version; always offer.
		return util.PromptYesOrNo(fmt.Sprintf(
			"Download release %s?", latest.String()))
	}

	own, err := goversion.NewVersion(version.Version)
	if err != nil {
		return false, errors.WithContext(err, "parse version")
	}

	if !own.LessThan(latest) {
		fmt.Println("Your Lectern binary is already up to date.")
		return false, nil
	}
	return util.PromptYesOrNo(fmt.Sprintf(
		"Upgrade from %s to %s?", own.String(), latest.String()))
}

func downloadRelease(tarballURL string) error {
	resp, err := http.Get(tarballURL)
	if err != nil {
		return errors.WithContext(err, "get")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("server responded with %s", resp.Status)
	}

	return extractRelease(resp.Body)
}

// extractRelease takes a .tar.gz Reader, and extracts the Lectern binary to
// the current working directory.
func extractRelease(src io.Reader) error {
	gzr, err := gzip.NewReader(src)
	if err != nil {
		return errors.WithContext(err, "new gzip reader")
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	var header *tar.Header
	for {
		header, err = tr.Next()

		switch {
		case err == io.EOF:
			return errors.New("no %q in release archive", binaryName)
		case err != nil:
			return errors.WithContext(err, "read tar header")
		case header == nil:
			continue
		}

		if header.Typeflag == tar.TypeReg && path.Base(header.Name) == binaryName {
			break
		}
	}

	dir, err := os.Getwd()
	if err != nil {
		return errors.WithContext(err, "get working dir")
	}

	file, err := fs.OpenFile(path.Join(dir, binaryName),
		os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode))
	if err != nil {
		return errors.WithContext(err, "create path")
	}
	defer file.Close()

	if _, err := io.Copy(file, tr); err != nil {
		return errors.WithContext(err, "io copy")
	}
	return nil
}
