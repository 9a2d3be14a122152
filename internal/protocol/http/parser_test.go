package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tinyweb/internal/buffer"
)

func parseAll(t *testing.T, raw string) (*Parser, ParseStatus, error) {
	t.Helper()
	p := NewParser(Limits{})
	buf := buffer.New(0)
	buf.AppendString(raw)
	status, err := p.Parse(buf)
	return p, status, err
}

func TestParseSimpleGet(t *testing.T) {
	p, status, err := parseAll(t, "GET /index HTTP/1.1\r\nHost: example\r\nconnection: keep-alive\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, Complete, status)

	req := p.Request()
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, "/index", req.RawPath)
	assert.Equal(t, "1.1", req.Version)
	assert.Equal(t, "example", req.Get("host"))
	assert.True(t, req.KeepAlive())
	assert.Empty(t, req.Body)
}

func TestParseByteAtATime(t *testing.T) {
	raw := "GET /picture HTTP/1.1\r\nConnection: close\r\n\r\n"
	p := NewParser(Limits{})
	buf := buffer.New(0)

	for i := 0; i < len(raw)-1; i++ {
		buf.Append([]byte{raw[i]})
		status, err := p.Parse(buf)
		require.NoError(t, err)
		require.Equal(t, NeedMore, status, "after %d bytes", i+1)
	}
	buf.Append([]byte{raw[len(raw)-1]})
	status, err := p.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, "/picture.html", p.Request().Path)
	assert.False(t, p.Request().KeepAlive())
	assert.Equal(t, 0, buf.ReadableBytes())
}

func TestParsePipelined(t *testing.T) {
	p := NewParser(Limits{})
	buf := buffer.New(0)
	buf.AppendString("GET /a.txt HTTP/1.1\r\n\r\nGET /b.txt HTTP/1.1\r\n\r\n")

	status, err := p.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, "/a.txt", p.Request().Path)
	assert.Equal(t, "GET /b.txt HTTP/1.1\r\n\r\n", string(buf.Peek()))

	p.Reset()
	status, err = p.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, "/b.txt", p.Request().Path)
}

func TestParseFormPost(t *testing.T) {
	body := "username=bob&password=s%21x"
	p, status, err := parseAll(t, "POST /login HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 27\r\n\r\n"+body)
	require.NoError(t, err)
	require.Equal(t, Complete, status)

	req := p.Request()
	assert.Equal(t, "/login.html", req.Path)
	assert.Equal(t, body, string(req.Body))
	assert.True(t, req.IsFormPost())
	assert.Equal(t, "bob", req.FormValue("username"))
	assert.Equal(t, "s!x", req.FormValue("password"))
}

func TestParseBodySplitAcrossReads(t *testing.T) {
	p := NewParser(Limits{})
	buf := buffer.New(0)
	buf.AppendString("POST /x HTTP/1.1\r\nContent-Length: 10\r\n\r\n01234")

	status, err := p.Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, NeedMore, status)
	assert.True(t, p.InProgress())

	buf.AppendString("56789")
	status, err = p.Parse(buf)
	require.NoError(t, err)
	require.Equal(t, Complete, status)
	assert.Equal(t, "0123456789", string(p.Request().Body))
	assert.Nil(t, p.Request().Form)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no target", "GARBAGE\r\n", ErrBadRequestLine},
		{"no version", "GET /\r\n", ErrBadRequestLine},
		{"not http", "GET / FTP/1.0\r\n", ErrBadRequestLine},
		{"relative target", "GET index.html HTTP/1.1\r\n", ErrBadRequestLine},
		{"http2", "GET / HTTP/2.0\r\n", ErrBadVersion},
		{"header without colon", "GET / HTTP/1.1\r\nBadHeader\r\n", ErrBadHeader},
		{"chunked", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", ErrUnsupportedBody},
		{"negative length", "POST / HTTP/1.1\r\nContent-Length: -1\r\n\r\n", ErrBadLength},
		{"bad escape", "GET /%zz HTTP/1.1\r\n", ErrBadRequestLine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, status, err := parseAll(t, tt.raw)
			assert.Equal(t, Malformed, status)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, p.Err(), tt.want)
		})
	}
}

func TestParseLimits(t *testing.T) {
	p := NewParser(Limits{MaxLineBytes: 16, MaxBodyBytes: 4})
	buf := buffer.New(0)
	buf.AppendString("GET /aaaaaaaaaaaaaaaaaaaaaaaa")
	status, err := p.Parse(buf)
	assert.Equal(t, Malformed, status)
	assert.ErrorIs(t, err, ErrTooLarge)

	p = NewParser(Limits{MaxBodyBytes: 4})
	buf = buffer.New(0)
	buf.AppendString("POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n")
	status, err = p.Parse(buf)
	assert.Equal(t, Malformed, status)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRoutePath(t *testing.T) {
	tests := map[string]string{
		"/":                 "/index.html",
		"/index":            "/index.html",
		"/register":         "/register.html",
		"/video":            "/video.html",
		"/style.css":        "/style.css",
		"/../../etc/passwd": "/etc/passwd",
		"/a/./b/../c.txt":   "/a/c.txt",
		"/login/":           "/login.html",
	}
	for in, want := range tests {
		assert.Equal(t, want, RoutePath(in), in)
	}
}

func TestKeepAliveRules(t *testing.T) {
	tests := []struct {
		version string
		conn    string
		want    bool
	}{
		{"1.1", "keep-alive", true},
		{"1.1", "Keep-Alive", true},
		{"1.1", "close", false},
		{"1.1", "", false},
		{"1.0", "keep-alive", false},
	}
	for _, tt := range tests {
		req := newRequest()
		req.Version = tt.version
		if tt.conn != "" {
			req.Header["Connection"] = tt.conn
		}
		assert.Equal(t, tt.want, req.KeepAlive(), "%s %q", tt.version, tt.conn)
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/html", ContentType("/index.html"))
	assert.Equal(t, "text/css", ContentType("/a/site.CSS"))
	assert.Equal(t, "image/jpeg", ContentType("/p.jpeg"))
	assert.Equal(t, "text/plain", ContentType("/README"))
	assert.Equal(t, "text/plain", ContentType("/archive.unknown"))
}
