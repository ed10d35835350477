// Package auth resolves vendor API keys and attaches them to requests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// DefaultHeader is used when neither a header nor a query parameter is configured.
const DefaultHeader = "X-API-Key"

// Credentials holds an API key and where to send it.
type Credentials struct {
	Key        string
	Header     string // request header carrying the key
	Scheme     string // optional header value prefix, e.g. "Bearer"
	QueryParam string // query parameter carrying the key, used when Header is empty
}

// LoadCredentials builds credentials from an inline key or a key file.
// The inline key wins. Returns nil when neither is set.
func LoadCredentials(key, keyFile, header, queryParam string) (*Credentials, error) {
	key = strings.TrimSpace(key)
	if key == "" && keyFile != "" {
		k, err := LoadKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("load api key: %w", err)
		}
		key = k
	}
	if key == "" {
		return nil, nil
	}

	c := &Credentials{Key: key, QueryParam: queryParam}
	if header != "" || queryParam == "" {
		c.Header, c.Scheme = parseHeader(header)
	}
	return c, nil
}

// parseHeader splits "Authorization: Bearer" style settings into name and scheme.
func parseHeader(h string) (name, scheme string) {
	if h == "" {
		return DefaultHeader, ""
	}
	name, scheme, _ = strings.Cut(h, ":")
	return strings.TrimSpace(name), strings.TrimSpace(scheme)
}

// LoadKey reads an API key from a file, trimming surrounding whitespace.
func LoadKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", errors.New("key file is empty")
	}
	return key, nil
}

// Apply attaches the key to req. A nil receiver leaves req untouched.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil || c.Key == "" {
		return
	}
	if c.Header != "" {
		v := c.Key
		if c.Scheme != "" {
			v = c.Scheme + " " + c.Key
		}
		req.Header.Set(c.Header, v)
		return
	}
	q := req.URL.Query()
	q.Set(c.QueryParam, c.Key)
	req.URL.RawQuery = q.Encode()
}

// Redacted returns the key with all but the last four characters masked.
func (c *Credentials) Redacted() string {
	if c == nil || c.Key == "" {
		return ""
	}
	if len(c.Key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.Key)-4) + c.Key[len(c.Key)-4:]
}
