package httpapi

import (
	"net/http"
	"time"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
)

type createDomainRequest struct {
	Host string `json:"host"`
}

type updateDomainRequest struct {
	IsActive *bool `json:"isActive"`
}

type domainResponse struct {
	ID        int64     `json:"id"`
	Host      string    `json:"host"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func toDomainResponse(d *shortener.Domain) domainResponse {
	return domainResponse{ID: d.ID, Host: d.Host, IsActive: d.IsActive, CreatedAt: d.CreatedAt}
}

func NewListDomainsHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		list, err := domains.List(ctx.Req.Context())
		if err != nil {
			writeError(ctx, err)
			return
		}
		out := make([]domainResponse, 0, len(list))
		for i := range list {
			out = append(out, toDomainResponse(&list[i]))
		}
		ctx.JSON(http.StatusOK, out)
	}
}

func NewGetDomainHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		d, err := domains.Get(ctx.Req.Context(), id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, toDomainResponse(d))
	}
}

func NewCreateDomainHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req createDomainRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		d, err := domains.Register(ctx.Req.Context(), req.Host)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, toDomainResponse(d))
	}
}

func NewUpdateDomainHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		var req updateDomainRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		if req.IsActive == nil {
			ctx.AbortWithReason(http.StatusBadRequest, "bad_input", "isActive is required")
			return
		}
		d, err := domains.SetActive(ctx.Req.Context(), id, *req.IsActive)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, toDomainResponse(d))
	}
}

// NewDeleteDomainHandler removes the domain together with its links.
func NewDeleteDomainHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		deleted, err := domains.Delete(ctx.Req.Context(), id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		if !deleted {
			ctx.AbortWithError(http.StatusNotFound, "not found")
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}

func NewCountDomainLinksHandler(domains *shortener.DomainAuthority) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		n, err := domains.CountLinks(ctx.Req.Context(), id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, map[string]int{"count": n})
	}
}
