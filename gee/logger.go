package gee

import (
	"log/slog"
	"time"
)

// Logger is a minimal debug-level request log; production wiring uses
// middleware.AccessLog instead.
func Logger() HandlerFunc {
	return func(ctx *Context) {
		t := time.Now()
		ctx.Next()
		slog.Debug("request",
			"status", ctx.Writer.Status(),
			"uri", ctx.Req.RequestURI,
			"elapsed_us", time.Since(t).Microseconds(),
			"size", ctx.Writer.Size())
	}
}
