package openai

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultBaseURL      = "https://api.openai.com"
	chatCompletionsPath = "/v1/chat/completions"
)

// Hosts accepted when VIDSTAMP_ALLOWED_HOSTS is unset. The API key is sent
// to whatever host the base URL names. Other OpenAI-compatible services must
// be listed explicitly with a base URL that the chat completions path can be
// appended to, e.g. https://openrouter.ai/api.
var defaultAllowedHosts = []string{"api.openai.com"}

func normalizeBaseURL(baseURL string) string {
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

func chatCompletionsURL(baseURL string) string {
	return normalizeBaseURL(baseURL) + chatCompletionsPath
}

// ValidateBaseURL rejects base URLs that are not plain https URLs on an
// allowed host. An empty allowedHosts means the default set.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	raw := normalizeBaseURL(baseURL)
	bad := func(reason string) error {
		return fmt.Errorf("invalid VIDSTAMP_BASE_URL %q: %s", raw, reason)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid VIDSTAMP_BASE_URL: %w", err)
	}
	switch {
	case !u.IsAbs() || u.Host == "":
		return bad("absolute URL with host is required")
	case u.User != nil:
		return bad("userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return bad("query and fragment are not allowed")
	case u.Hostname() == "":
		return bad("host is required")
	case !strings.EqualFold(u.Scheme, "https"):
		return bad("https is required")
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := allowedHostSet(allowedHosts)[host]; !ok {
		return bad(fmt.Sprintf("host %q is not in VIDSTAMP_ALLOWED_HOSTS", host))
	}
	return nil
}

// allowedHostSet accepts bare hosts as well as host:port and scheme-prefixed
// entries; only the host name is kept.
func allowedHostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		if h = hostOnly(h); h != "" {
			set[h] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, h := range defaultAllowedHosts {
			set[h] = struct{}{}
		}
	}
	return set
}

func hostOnly(entry string) string {
	v := strings.ToLower(strings.TrimSpace(entry))
	for _, p := range []string{"https://", "http://"} {
		v = strings.TrimPrefix(v, p)
	}
	if i := strings.IndexAny(v, ":/"); i >= 0 {
		v = v[:i]
	}
	return v
}
