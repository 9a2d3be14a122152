// Package http implements the HTTP/1.x request decoder and response encoder
// used by the reactor-driven server.
//
// # Decoding
//
// Parser consumes bytes from a connection's inbound buffer.Buffer one
// complete line at a time. It keeps its position across calls, so a request
// split over several reads is decoded as the bytes arrive:
//
//   - NeedMore: the request is incomplete; read more and call Parse again
//   - Complete: Request() holds the decoded request
//   - Malformed: the bytes cannot form a request; answer 400 and close
//
// Bytes following a complete request stay in the buffer for the next call.
//
// # Encoding
//
// Handler.Respond writes the status line and headers into the outbound
// buffer and returns the body as a content.Object, which the connection
// sends as the second segment of a vectored write. Error bodies that are
// generated rather than stored are appended to the header buffer instead.
//
// # Routing
//
// A few short paths map to pages ("/" to "/index.html", "/login" to
// "/login.html"). URL-encoded form posts to "/login.html" and
// "/register.html" run the account check and continue with "/welcome.html"
// on success or "/error.html" on failure.
package http
