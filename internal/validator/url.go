package validator

import (
	"net/url"
	"strings"

	"github.com/far4599/video-downloader-api/internal/apierror"
)

// NormalizeURL checks that raw is an absolute http(s) URL with a host and
// returns it with scheme and host lowercased. Platform support is left to
// the extraction engine.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apierror.New(apierror.InvalidURL, apierror.MsgEmptyURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", apierror.Wrap(err, apierror.InvalidURL, apierror.MsgInvalidURL)
	}

	if !u.IsAbs() || u.Opaque != "" {
		return "", apierror.New(apierror.InvalidURL, apierror.MsgInvalidURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", apierror.New(apierror.InvalidURL, apierror.MsgInvalidURL)
	}

	if u.Hostname() == "" || strings.ContainsAny(u.Host, " \t") {
		return "", apierror.New(apierror.InvalidURL, apierror.MsgInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)

	return u.String(), nil
}
