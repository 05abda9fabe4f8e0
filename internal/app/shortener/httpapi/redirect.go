package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/httpmiddleware"
	"github.com/emanueledeamicis/OpenShort/internal/platform/metrics"
)

// NewRedirectHandler resolves GET /:slug on the host the client addressed.
func NewRedirectHandler(res *shortener.Resolver) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		dec, err := res.Resolve(ctx.Req.Context(), shortener.Request{
			Host:      httpmiddleware.RequestHost(ctx.Req),
			Slug:      ctx.Param("slug"),
			IP:        httpmiddleware.ClientIP(ctx.Req),
			UserAgent: ctx.Req.UserAgent(),
			Referer:   ctx.Req.Referer(),
		})
		switch {
		case err == nil:
			metrics.Redirects.WithLabelValues("redirect").Inc()
		case errors.Is(err, shortener.ErrNotFound):
			metrics.Redirects.WithLabelValues("not_found").Inc()
			ctx.AbortWithError(http.StatusNotFound, "link not found")
			return
		case errors.Is(err, shortener.ErrBadInput):
			metrics.Redirects.WithLabelValues("bad_input").Inc()
			ctx.AbortWithReason(http.StatusBadRequest, "bad_input", "slug is required")
			return
		default:
			metrics.Redirects.WithLabelValues("error").Inc()
			slog.Error("redirect failed", "err", err, "slug", ctx.Param("slug"))
			ctx.AbortWithError(http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}

		// 301 会被浏览器缓存
		if dec.Permanent() {
			ctx.SetHeader("Cache-Control", "private, max-age=90")
		} else {
			ctx.SetHeader("Cache-Control", "no-store")
		}
		ctx.Redirect(dec.StatusCode(), dec.DestinationURL)
	}
}
