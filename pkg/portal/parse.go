package portal

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// NodeKind distinguishes folders from downloadable files.
type NodeKind int

const (
	// KindFolder is a container page that can be recursed into.
	KindFolder NodeKind = iota
	// KindFile is a downloadable leaf.
	KindFile
)

// Node is a single entry discovered in a folder listing.
type Node struct {
	Kind NodeKind

	// RemoteID is stable across repeated walks of the same resource. Display
	// names are not unique-safe; the ID is what the seen-file ledger keys on.
	RemoteID string

	// Name is the display name with filesystem-illegal characters stripped.
	Name string

	// PathSegments is the ordered list of folder names from the course root
	// down to (and excluding) this node.
	PathSegments []string

	// URL fetches the folder listing or the file's bytes.
	URL string
}

var (
	illegalPathChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	refIDPattern     = regexp.MustCompile(`ref_id=(\d+)`)
	titlePrefix      = regexp.MustCompile(`^[^-]+ - `)
)

// CleanName strips characters that are illegal in file paths.
func CleanName(name string) string {
	return strings.TrimSpace(illegalPathChars.ReplaceAllString(name, ""))
}

// parseListing extracts the entries of a folder page, in the order the
// portal presents them. The portal's authoring order carries meaning
// (lecture sequencing), so no sorting is imposed.
func parseListing(pageURL string, body io.Reader) ([]Node, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.WithContext(err, "parse page url")
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, errors.WithContext(err, "parse html")
	}

	items := doc.Find("div.il_ContainerListItem")
	if items.Length() == 0 {
		// The portal renders some container types without the standard list
		// markup. Fall back to scanning every link on the page.
		return parseListingFallback(base, doc), nil
	}

	var nodes []Node
	items.Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a.il_ContainerItemTitle").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		name := CleanName(link.Text())
		if name == "" {
			return
		}

		resolved := resolveURL(base, href)
		if isFolderItem(item) {
			nodes = append(nodes, Node{
				Kind:     KindFolder,
				RemoteID: remoteID(resolved),
				Name:     name,
				URL:      resolved,
			})
		} else if strings.Contains(href, "cmd=sendfile") {
			nodes = append(nodes, Node{
				Kind:     KindFile,
				RemoteID: remoteID(resolved),
				Name:     name,
				URL:      resolved,
			})
		}
	})
	return nodes, nil
}

// isFolderItem checks the item's icon for the folder alt text ("Folder" in
// the English UI, "Ordner" in the German one).
func isFolderItem(item *goquery.Selection) bool {
	outer := item.Closest("div.ilContainerListItemOuter")
	if outer.Length() == 0 {
		return false
	}

	folder := false
	outer.Find("img[alt]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		alt := strings.ToLower(img.AttrOr("alt", ""))
		if strings.Contains(alt, "folder") || strings.Contains(alt, "ordner") {
			folder = true
			return false
		}
		return true
	})
	return folder
}

// navigationLabels are link texts that look like folders but are page
// chrome, not content.
var navigationLabels = map[string]bool{
	"home": true, "back": true, "up": true, "zurück": true, "startseite": true,
}

func parseListingFallback(base *url.URL, doc *goquery.Document) []Node {
	var nodes []Node
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href := link.AttrOr("href", "")
		name := CleanName(link.Text())
		if len(name) < 2 {
			return
		}

		switch {
		case strings.Contains(href, "cmd=sendfile"):
			resolved := resolveURL(base, href)
			nodes = append(nodes, Node{
				Kind:     KindFile,
				RemoteID: remoteID(resolved),
				Name:     name,
				URL:      resolved,
			})
		case strings.Contains(href, "cmd=view") && strings.Contains(href, "ref_id"):
			if navigationLabels[strings.ToLower(name)] {
				return
			}
			resolved := resolveURL(base, href)
			nodes = append(nodes, Node{
				Kind:     KindFolder,
				RemoteID: remoteID(resolved),
				Name:     name,
				URL:      resolved,
			})
		}
	})
	return nodes
}

// parseCourseTitle extracts the course's display name from its root page.
func parseCourseTitle(body io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return ""
	}

	selectors := []string{
		"h1",
		"div[class*='Title']",
		"span[class*='Title']",
	}
	for _, selector := range selectors {
		title := ""
		doc.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if text := CleanName(el.Text()); text != "" {
				title = text
				return false
			}
			return true
		})
		if title != "" {
			return title
		}
	}

	// Fall back to the <title> tag, minus the portal's "StudOn - " style
	// prefix.
	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	return CleanName(titlePrefix.ReplaceAllString(pageTitle, ""))
}

// RemoteID derives the stable portal identifier for a resource URL. It is
// what course records and the seen-file ledger key on.
func RemoteID(rawURL string) string {
	return remoteID(rawURL)
}

// remoteID derives a stable identifier from a resource URL. The portal's
// ref_id uniquely identifies the underlying object regardless of how the
// link was rendered; failing that, the full resolved URL is used.
func remoteID(resolved string) string {
	if u, err := url.Parse(resolved); err == nil {
		if id := u.Query().Get("ref_id"); id != "" {
			return id
		}
	}
	if match := refIDPattern.FindStringSubmatch(resolved); match != nil {
		return match[1]
	}
	return resolved
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
