package models

import (
	"net/url"
	"path/filepath"
	"strings"
)

// LocatorKind tells where a photo's image bytes live
type LocatorKind int

const (
	LocatorNone LocatorKind = iota
	LocatorLocal
	LocatorRemote
)

func (k LocatorKind) String() string {
	switch k {
	case LocatorLocal:
		return "local"
	case LocatorRemote:
		return "remote"
	default:
		return "none"
	}
}

// Locator is the single normalized reference to a photo's image
type Locator struct {
	Kind  LocatorKind
	Value string
}

// IsZero reports whether the photo has no resolvable image
func (l Locator) IsZero() bool {
	return l.Kind == LocatorNone
}

// Locator resolves the photo media reference. A download URL wins over a
// local URI. Relative remote paths are resolved against the host of
// baseURL, so "/uploads/x.jpg" with base "http://h:3001/api" becomes
// "http://h:3001/uploads/x.jpg".
func (p *Photo) Locator(baseURL string) Locator {
	if src := strings.TrimSpace(p.DownloadURL); src != "" {
		return Locator{Kind: LocatorRemote, Value: resolveRemote(src, baseURL)}
	}

	src := strings.TrimSpace(p.URI)
	switch {
	case src == "":
		return Locator{}
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return Locator{Kind: LocatorRemote, Value: src}
	case strings.HasPrefix(src, "file:"), strings.HasPrefix(src, "content:"):
		return Locator{Kind: LocatorLocal, Value: src}
	case filepath.IsAbs(src):
		return Locator{Kind: LocatorLocal, Value: "file://" + filepath.ToSlash(src)}
	default:
		return Locator{Kind: LocatorRemote, Value: resolveRemote(src, baseURL)}
	}
}

func resolveRemote(src, baseURL string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return src
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return src
	}
	if !strings.HasPrefix(src, "/") {
		src = "/" + src
	}
	return base.Scheme + "://" + base.Host + src
}
