package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/tinyweb/internal/buffer"
	"github.com/marmos91/tinyweb/pkg/content"
)

// ParseStatus is the outcome of one Parse call.
type ParseStatus int

const (
	NeedMore ParseStatus = iota
	Complete
	Malformed
)

func (s ParseStatus) String() string {
	switch s {
	case NeedMore:
		return "need-more"
	case Complete:
		return "complete"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrBadRequestLine  = errors.New("malformed request line")
	ErrBadHeader       = errors.New("malformed header line")
	ErrBadVersion      = errors.New("unsupported protocol version")
	ErrBadLength       = errors.New("invalid Content-Length")
	ErrUnsupportedBody = errors.New("unsupported transfer encoding")
	ErrTooLarge        = errors.New("request too large")
)

type parseState int

const (
	stateRequestLine parseState = iota
	stateHeaders
	stateBody
	stateDone
)

// Limits bounds what the parser accepts.
type Limits struct {
	// MaxLineBytes bounds the request line and each header line.
	MaxLineBytes int

	// MaxHeaderBytes bounds the sum of all header lines.
	MaxHeaderBytes int

	// MaxBodyBytes bounds Content-Length.
	MaxBodyBytes int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes:   8 << 10,
		MaxHeaderBytes: 32 << 10,
		MaxBodyBytes:   1 << 20,
	}
}

// Parser decodes one request at a time. Call Reset before reusing it for
// the next request on the same connection.
type Parser struct {
	limits      Limits
	state       parseState
	req         *Request
	headerBytes int
	bodyLen     int
	err         error
}

// NewParser returns a parser ready for a new request. Zero limit fields take
// their defaults.
func NewParser(limits Limits) *Parser {
	def := DefaultLimits()
	if limits.MaxLineBytes <= 0 {
		limits.MaxLineBytes = def.MaxLineBytes
	}
	if limits.MaxHeaderBytes <= 0 {
		limits.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if limits.MaxBodyBytes <= 0 {
		limits.MaxBodyBytes = def.MaxBodyBytes
	}
	p := &Parser{limits: limits}
	p.Reset()
	return p
}

// Reset discards any partial request.
func (p *Parser) Reset() {
	p.state = stateRequestLine
	p.req = newRequest()
	p.headerBytes = 0
	p.bodyLen = 0
	p.err = nil
}

// Request returns the decoded request after Parse reported Complete.
func (p *Parser) Request() *Request {
	return p.req
}

// Err returns the reason for the last Malformed result.
func (p *Parser) Err() error {
	return p.err
}

// InProgress reports whether some bytes of a request have been consumed.
func (p *Parser) InProgress() bool {
	return p.state != stateRequestLine && p.state != stateDone
}

var crlf = []byte("\r\n")

// Parse consumes as much of buf as forms the current request.
func (p *Parser) Parse(buf *buffer.Buffer) (ParseStatus, error) {
	for p.state != stateDone {
		if p.state == stateBody {
			if buf.ReadableBytes() < p.bodyLen {
				if p.bodyLen > p.limits.MaxBodyBytes {
					return p.fail(ErrTooLarge)
				}
				return NeedMore, nil
			}
			p.req.Body = append([]byte(nil), buf.Peek()[:p.bodyLen]...)
			buf.Retrieve(p.bodyLen)
			p.finishBody()
			p.state = stateDone
			break
		}

		data := buf.Peek()
		end := bytes.Index(data, crlf)
		if end < 0 {
			if len(data) > p.limits.MaxLineBytes {
				return p.fail(ErrTooLarge)
			}
			return NeedMore, nil
		}
		if end > p.limits.MaxLineBytes {
			return p.fail(ErrTooLarge)
		}
		line := string(data[:end])
		buf.Retrieve(end + 2)

		switch p.state {
		case stateRequestLine:
			if line == "" {
				// Tolerate stray CRLFs between requests.
				continue
			}
			if err := p.parseRequestLine(line); err != nil {
				return p.fail(err)
			}
			p.state = stateHeaders
		case stateHeaders:
			if line == "" {
				if err := p.startBody(); err != nil {
					return p.fail(err)
				}
				continue
			}
			p.headerBytes += len(line) + 2
			if p.headerBytes > p.limits.MaxHeaderBytes {
				return p.fail(ErrTooLarge)
			}
			if err := p.parseHeader(line); err != nil {
				return p.fail(err)
			}
		}
	}
	return Complete, nil
}

func (p *Parser) fail(err error) (ParseStatus, error) {
	p.err = err
	return Malformed, err
}

func (p *Parser) parseRequestLine(line string) error {
	method, rest, ok := strings.Cut(line, " ")
	if !ok || method == "" {
		return fmt.Errorf("%w: missing method", ErrBadRequestLine)
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || target == "" {
		return fmt.Errorf("%w: missing target", ErrBadRequestLine)
	}
	version, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok || version == "" {
		return fmt.Errorf("%w: %q", ErrBadRequestLine, proto)
	}
	if version != "1.0" && version != "1.1" {
		return fmt.Errorf("%w: %s", ErrBadVersion, version)
	}
	if !strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: target %q", ErrBadRequestLine, target)
	}

	pathPart, _, _ := strings.Cut(target, "?")
	unescaped, err := url.PathUnescape(pathPart)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequestLine, err)
	}

	p.req.Method = method
	p.req.RawPath = target
	p.req.Version = version
	p.req.Path = RoutePath(unescaped)
	return nil
}

func (p *Parser) parseHeader(line string) error {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadHeader, line)
	}
	key = strings.TrimRight(key, " \t")
	if key == "" || strings.ContainsAny(key, " \t") {
		return fmt.Errorf("%w: %q", ErrBadHeader, line)
	}
	p.req.Header[textproto.CanonicalMIMEHeaderKey(key)] = strings.TrimSpace(value)
	return nil
}

func (p *Parser) startBody() error {
	if te := p.req.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		return fmt.Errorf("%w: %s", ErrUnsupportedBody, te)
	}

	p.bodyLen = 0
	if cl := p.req.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q", ErrBadLength, cl)
		}
		if n > p.limits.MaxBodyBytes {
			return ErrTooLarge
		}
		p.bodyLen = n
	}
	p.state = stateBody
	return nil
}

func (p *Parser) finishBody() {
	if !p.req.IsFormPost() {
		return
	}
	form, err := url.ParseQuery(string(p.req.Body))
	if err != nil {
		// Keep whatever pairs decoded cleanly.
		form = url.Values{}
		for _, pair := range strings.Split(string(p.req.Body), "&") {
			k, v, _ := strings.Cut(pair, "=")
			if k, err := url.QueryUnescape(k); err == nil {
				if v, err := url.QueryUnescape(v); err == nil {
					form.Add(k, v)
				}
			}
		}
	}
	p.req.Form = form
}

// pageAliases are short paths served as their ".html" page.
var pageAliases = map[string]bool{
	"/index":    true,
	"/register": true,
	"/login":    true,
	"/welcome":  true,
	"/video":    true,
	"/picture":  true,
}

// RoutePath maps a request path to the resource path to serve.
func RoutePath(p string) string {
	p = content.CleanPath(p)
	if p == "/" {
		return "/index.html"
	}
	if pageAliases[p] {
		return p + ".html"
	}
	return p
}
