package gee

import "net/http"

// ResponseWriter records the status and body size for the access log and
// HTTP metrics. The first WriteHeader wins; later calls are dropped so a
// handler that already redirected cannot be turned into an error page.
type ResponseWriter struct {
	http.ResponseWriter
	status  int
	size    int
	written bool
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.written {
		return
	}
	rw.status = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *ResponseWriter) WriteString(s string) (int, error) {
	return rw.Write([]byte(s))
}

func (rw *ResponseWriter) Status() int {
	return rw.status
}

// Size is the number of body bytes written so far.
func (rw *ResponseWriter) Size() int {
	return rw.size
}

func (rw *ResponseWriter) Written() bool {
	return rw.written
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
