package httpwire

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

// StatusText mirrors the small set of reason phrases spec §6 enumerates;
// it intentionally does not reach for net/http.StatusText so this package
// has no dependency on the status codes the standard library happens to
// know about versus the ones this server actually emits.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 206:
		return "Partial Content"
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 416:
		return "Range Not Satisfiable"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}

const serverHeaderValue = "staticd/1.0"

// Header holds the small, fixed header set spec §6/§4.5 asks for; there is
// no general header map here because the server never emits anything
// else.
type Header struct {
	ContentType  string
	ContentLength int64
	ContentRange string // set only for 206 responses
}

// WriteStatusLineAndHeaders writes the status line and the fixed header
// block (Server, Date, Content-Type, Content-Length, Connection: close,
// and Content-Range when set) followed by the blank line that ends the
// header block. It retries on short writes exactly like
// send_http_response_with_body_flag's partial-send loop, adapted to an
// io.Writer (internal/handler passes a raw-fd writer that retries EINTR
// itself, so a short write here is simply continued).
func WriteStatusLineAndHeaders(w io.Writer, status int, h Header) error {
	var b []byte
	b = append(b, "HTTP/1.1 "...)
	b = append(b, strconv.Itoa(status)...)
	b = append(b, ' ')
	b = append(b, StatusText(status)...)
	b = append(b, "\r\n"...)

	b = append(b, "Content-Type: "...)
	b = append(b, h.ContentType...)
	b = append(b, "\r\n"...)

	b = append(b, "Content-Length: "...)
	b = append(b, strconv.FormatInt(h.ContentLength, 10)...)
	b = append(b, "\r\n"...)

	if h.ContentRange != "" {
		b = append(b, "Content-Range: "...)
		b = append(b, h.ContentRange...)
		b = append(b, "\r\n"...)
	}

	b = append(b, "Server: "...)
	b = append(b, serverHeaderValue...)
	b = append(b, "\r\n"...)

	b = append(b, "Date: "...)
	b = append(b, time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")...)
	b = append(b, "\r\n"...)

	b = append(b, "Connection: close\r\n\r\n"...)

	return writeAll(w, b)
}

// writeAll retries short writes, the Go shape of
// http_builder.c's partial-send while loops.
func writeAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("httpwire: write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("httpwire: write: connection closed mid-response")
		}
		buf = buf[n:]
	}
	return nil
}

// WriteBody writes body to w unless sendBody is false (HEAD requests,
// spec §4.5 step 9's "body suppressed for HEAD").
func WriteBody(w io.Writer, body []byte, sendBody bool) error {
	if !sendBody || len(body) == 0 {
		return nil
	}
	return writeAll(w, body)
}
