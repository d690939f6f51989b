package resolver

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

var rejectedPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

var assetExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true, ".avif": true,
	".ico": true, ".bmp": true, ".css": true, ".js": true, ".mjs": true, ".json": true, ".xml": true,
	".pdf": true, ".zip": true, ".gz": true, ".rar": true, ".7z": true, ".doc": true, ".docx": true,
	".xls": true, ".xlsx": true, ".csv": true, ".ppt": true, ".pptx": true, ".mp3": true, ".mp4": true,
	".webm": true, ".avi": true, ".mov": true, ".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
	".eot": true, ".txt": true, ".exe": true, ".dmg": true,
}

// Resolve turns an href or src value into an absolute http(s) URL.
// It returns an empty string for values that are not crawlable or cannot be parsed.
func Resolve(href, baseOrigin, currentPageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)
	for _, prefix := range rejectedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	switch {
	case strings.HasPrefix(href, "//"):
		return absolute("https:" + href)
	case strings.HasPrefix(href, "/"):
		return resolveAgainst(baseOrigin, href)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		if !isHTTP(ref) || ref.Host == "" {
			return ""
		}
		return href
	}
	return resolveAgainst(currentPageURL, href)
}

func resolveAgainst(base, href string) string {
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(ref)
	if !isHTTP(u) || u.Host == "" {
		return ""
	}
	return u.String()
}

func absolute(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !isHTTP(u) || u.Host == "" {
		return ""
	}
	return u.String()
}

func isHTTP(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

// IsExternal reports whether rawURL points to a different host than baseOrigin.
// Default ports are ignored. Unparsable input is treated as internal.
func IsExternal(rawURL, baseOrigin string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	b, err := url.Parse(baseOrigin)
	if err != nil || b.Host == "" {
		return false
	}
	return hostKey(u) != hostKey(b)
}

// SameOrigin reports whether both URLs share scheme, host and port.
func SameOrigin(rawURL, baseOrigin string) bool {
	o := Origin(rawURL)
	return o != "" && Normalize(o) == Normalize(Origin(baseOrigin))
}

func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (port == "80" && !strings.EqualFold(u.Scheme, "https")) ||
		(port == "443" && strings.EqualFold(u.Scheme, "https")) {
		return host
	}
	return net.JoinHostPort(host, port)
}

// Normalize returns the key under which a URL is tracked: lower-case scheme and host,
// no default port, no fragment and no trailing slash.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// Origin returns scheme://host of rawURL or an empty string.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// IsAsset reports whether the URL path ends in a file extension that is never crawled as a page.
func IsAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return assetExtensions[strings.ToLower(path.Ext(u.Path))]
}

func StripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// SiteURL turns user input such as "example.com" into an absolute site URL.
// A missing scheme defaults to https. Anything other than http(s) with a host is rejected.
func SiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty site url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid site url: %w", err)
	}
	if !isHTTP(u) || u.Hostname() == "" {
		return "", fmt.Errorf("invalid site url: %q", raw)
	}
	return u.String(), nil
}
