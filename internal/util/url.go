package util

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of a URL, e.g. "amazon.co.uk" for
// "https://smile.amazon.co.uk/dp/X". It returns "" for unparsable input.
func RegistrableDomain(rawURL string) string {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsedURL.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// NormalizeURL forces https, drops "www." and a trailing slash, and strips
// tracking parameters from a board URL so the same page compares equal.
func NormalizeURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = strings.TrimPrefix(parsedURL.Host, "www.")
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	parsedURL.Fragment = ""
	return parsedURL.String(), nil
}

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref", "ref_", "tag", "psc"}

// SlugFromURL returns the last path segment of a board deal URL.
func SlugFromURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	slug := path.Base(strings.TrimSuffix(parsedURL.Path, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	return slug
}
