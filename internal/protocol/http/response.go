package http

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/marmos91/tinyweb/internal/buffer"
	"github.com/marmos91/tinyweb/internal/logger"
	"github.com/marmos91/tinyweb/pkg/content"
	"github.com/marmos91/tinyweb/pkg/store/credential"
)

const (
	StatusOK                 = 200
	StatusBadRequest         = 400
	StatusForbidden          = 403
	StatusNotFound           = 404
	StatusServiceUnavailable = 503
)

var statusText = map[int]string{
	StatusOK:                 "OK",
	StatusBadRequest:         "Bad Request",
	StatusForbidden:          "Forbidden",
	StatusNotFound:           "Not Found",
	StatusServiceUnavailable: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "" if unknown.
func StatusText(code int) string {
	return statusText[code]
}

var errorPages = map[int]string{
	StatusBadRequest: "/400.html",
	StatusForbidden:  "/403.html",
	StatusNotFound:   "/404.html",
}

// Form routes and their outcomes.
const (
	LoginPath    = "/login.html"
	RegisterPath = "/register.html"
	WelcomePath  = "/welcome.html"
	ErrorPath    = "/error.html"
)

// Accounts checks and creates user accounts for form posts.
// *credential.Authenticator satisfies it.
type Accounts interface {
	Register(ctx context.Context, name, password string) (*credential.User, error)
	Verify(ctx context.Context, name, password string) (*credential.User, error)
}

// Reply describes an encoded response.
type Reply struct {
	Code      int
	Path      string
	KeepAlive bool

	// Body is the object to send after the headers, nil when the body was
	// appended to the header buffer. The caller must Close it.
	Body content.Object
}

// BodyLen returns the length of the out-of-band body.
func (r *Reply) BodyLen() int {
	if r.Body == nil {
		return 0
	}
	return r.Body.Len()
}

// Close releases the body.
func (r *Reply) Close() error {
	if r.Body == nil {
		return nil
	}
	err := r.Body.Close()
	r.Body = nil
	return err
}

// Handler turns requests into responses backed by a content store.
type Handler struct {
	content  content.Store
	accounts Accounts
}

// NewHandler returns a Handler. accounts may be nil, in which case every
// form post ends on the error page.
func NewHandler(store content.Store, accounts Accounts) *Handler {
	return &Handler{content: store, accounts: accounts}
}

// Respond encodes the response to req into out.
//
// code is StatusOK for a decoded request or StatusBadRequest for one the
// parser rejected (req is then nil and the connection will be closed).
// Status and headers always land in out; the body is either returned in
// Reply.Body or, for generated error pages, appended to out.
func (h *Handler) Respond(ctx context.Context, req *Request, code int, out *buffer.Buffer) *Reply {
	reply := &Reply{Code: code}
	if req != nil {
		reply.KeepAlive = req.KeepAlive() && code == StatusOK
		reply.Path = req.Path
		if code == StatusOK && req.IsFormPost() {
			reply.Path = h.routeForm(ctx, req)
		}
	}

	if reply.Code == StatusOK {
		reply.Code = h.check(ctx, reply.Path)
	}

	if reply.Code != StatusOK {
		if page, ok := errorPages[reply.Code]; ok && h.check(ctx, page) == StatusOK {
			reply.Path = page
		} else {
			reply.Path = ""
		}
	}

	if reply.Path != "" {
		obj, err := h.content.Open(ctx, reply.Path)
		if err == nil {
			writeHead(out, reply.Code, reply.KeepAlive, ContentType(reply.Path), obj.Len())
			reply.Body = obj
			return reply
		}
		logger.Debug("Open %s: %v", reply.Path, err)
		if reply.Code == StatusOK {
			reply.Code = StatusNotFound
		}
	}

	body := ErrorBody(reply.Code, "File NotFound!")
	writeHead(out, reply.Code, reply.KeepAlive, "text/html", len(body))
	out.AppendString(body)
	return reply
}

// check stats name and returns the status it would be served with.
func (h *Handler) check(ctx context.Context, name string) int {
	info, err := h.content.Stat(ctx, name)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, content.ErrContentNotFound) {
			logger.Debug("Stat %s: %v", name, err)
		}
		return StatusNotFound
	}
	if !info.WorldReadable() {
		return StatusForbidden
	}
	return StatusOK
}

func (h *Handler) routeForm(ctx context.Context, req *Request) string {
	if req.Path != LoginPath && req.Path != RegisterPath {
		return req.Path
	}
	if h.accounts == nil {
		return ErrorPath
	}

	name, password := req.FormValue("username"), req.FormValue("password")
	var err error
	if req.Path == LoginPath {
		_, err = h.accounts.Verify(ctx, name, password)
	} else {
		_, err = h.accounts.Register(ctx, name, password)
	}
	if err != nil {
		logger.Debug("Form %s for %q rejected: %v", req.Path, name, err)
		return ErrorPath
	}
	logger.Info("Form %s accepted for %q", req.Path, name)
	return WelcomePath
}

func writeHead(out *buffer.Buffer, code int, keepAlive bool, contentType string, length int) {
	text, ok := statusText[code]
	if !ok {
		code, text = StatusBadRequest, statusText[StatusBadRequest]
	}
	out.AppendString("HTTP/1.1 " + strconv.Itoa(code) + " " + text + "\r\n")
	if keepAlive {
		out.AppendString("Connection: keep-alive\r\n")
		out.AppendString("keep-alive: max=6, timeout=120\r\n")
	} else {
		out.AppendString("Connection: close\r\n")
	}
	out.AppendString("Content-type: " + contentType + "\r\n")
	out.AppendString("Content-length: " + strconv.Itoa(length) + "\r\n\r\n")
}

// ErrorBody renders the built-in error page.
func ErrorBody(code int, message string) string {
	text, ok := statusText[code]
	if !ok {
		text = statusText[StatusBadRequest]
	}
	return fmt.Sprintf("<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>TinyWebServer</em></body></html>",
		code, text, message)
}

// BusyMessage is the body sent when the server is at capacity.
const BusyMessage = "Server busy!"

// WriteBusy encodes the complete 503 response sent to connections refused
// at accept time.
func WriteBusy(out *buffer.Buffer) {
	writeHead(out, StatusServiceUnavailable, false, "text/plain", len(BusyMessage))
	out.AppendString(BusyMessage)
}
