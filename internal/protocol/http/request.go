package http

import (
	"net/textproto"
	"net/url"
	"strings"
)

// Request is one decoded request.
type Request struct {
	Method string

	// Path is the routed, cleaned path that will be served.
	Path string

	// RawPath is the request target as sent, including any query string.
	RawPath string

	// Version is the protocol version without the "HTTP/" prefix ("1.1").
	Version string

	// Header keys are canonicalized ("content-length" → "Content-Length").
	Header map[string]string

	Body []byte

	// Form holds decoded url-encoded body fields for form posts.
	Form url.Values
}

func newRequest() *Request {
	return &Request{Header: make(map[string]string)}
}

// Get returns the header value for name, matched case-insensitively.
func (r *Request) Get(name string) string {
	return r.Header[textproto.CanonicalMIMEHeaderKey(name)]
}

// KeepAlive reports whether the connection should stay open after the
// response: only HTTP/1.1 requests that ask for it with
// "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	return r.Version == "1.1" && strings.EqualFold(strings.TrimSpace(r.Get("Connection")), "keep-alive")
}

// IsFormPost reports whether the request is a url-encoded form submission.
func (r *Request) IsFormPost() bool {
	if r.Method != "POST" {
		return false
	}
	ct := strings.ToLower(r.Get("Content-Type"))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct) == "application/x-www-form-urlencoded"
}

// FormValue returns the first value of a form field, or "".
func (r *Request) FormValue(key string) string {
	if r.Form == nil {
		return ""
	}
	return r.Form.Get(key)
}
