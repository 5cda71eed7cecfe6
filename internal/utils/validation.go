package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateCollectorURL checks that rawURL is an absolute http(s) URL with a
// host. Collectors commonly live on private networks, so no address
// filtering is applied.
func ValidateCollectorURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("collector URL cannot be empty")
	}
	if err := validate.Var(rawURL, "url"); err != nil {
		return fmt.Errorf("invalid collector URL %q", rawURL)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only HTTP and HTTPS protocols are allowed")
	}
	if parsedURL.Hostname() == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if parsedURL.User != nil {
		return fmt.Errorf("credentials in the collector URL are not allowed, use upload headers")
	}
	return checkMaliciousPatterns(rawURL)
}

// ValidateHeaders rejects header names or values that would break the request
func ValidateHeaders(headers map[string]string) error {
	for name, value := range headers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("header name cannot be empty")
		}
		if strings.ContainsAny(name, " \t\r\n:") {
			return fmt.Errorf("invalid header name %q", name)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("header %s contains a line break", name)
		}
	}
	return nil
}

// checkMaliciousPatterns looks for other protocols smuggled into the URL
func checkMaliciousPatterns(rawURL string) error {
	lower := strings.ToLower(rawURL)

	suspiciousPatterns := []string{
		"file://",
		"ftp://",
		"gopher://",
		"dict://",
		"ldap://",
		"telnet://",
	}
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("protocol %s is not allowed", pattern)
		}
	}

	// check again after decoding to catch encoded bypasses
	if strings.Contains(lower, "%") {
		decoded, err := url.QueryUnescape(lower)
		if err == nil && decoded != lower {
			return checkMaliciousPatterns(decoded)
		}
	}
	return nil
}
