package httpapi

import (
	"net/http"
	"time"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/platform/httpmiddleware"
)

type createLinkRequest struct {
	Slug           string     `json:"slug,omitempty"`
	DestinationURL string     `json:"destinationUrl"`
	Domain         string     `json:"domain"`
	Title          *string    `json:"title,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	IsActive       *bool      `json:"isActive,omitempty"`
	RedirectType   int        `json:"redirectType,omitempty"`
}

// updateLinkRequest: absent fields are left unchanged. Version, when set,
// must match the stored version.
type updateLinkRequest struct {
	DestinationURL *string    `json:"destinationUrl,omitempty"`
	Title          *string    `json:"title,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ClearExpiry    bool       `json:"clearExpiry,omitempty"`
	IsActive       *bool      `json:"isActive,omitempty"`
	RedirectType   *int       `json:"redirectType,omitempty"`
	Version        int64      `json:"version,omitempty"`
}

type linkResponse struct {
	ID             int64      `json:"id"`
	Slug           string     `json:"slug"`
	Domain         string     `json:"domain"`
	ShortURL       string     `json:"shortUrl"`
	DestinationURL string     `json:"destinationUrl"`
	Title          *string    `json:"title"`
	Notes          *string    `json:"notes"`
	IsActive       bool       `json:"isActive"`
	RedirectType   int        `json:"redirectType"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	ClickCount     int64      `json:"clickCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Version        int64      `json:"version"`
}

func toLinkResponse(req *http.Request, l *shortener.Link) linkResponse {
	return linkResponse{
		ID:             l.ID,
		Slug:           l.Slug,
		Domain:         l.Domain,
		ShortURL:       httpmiddleware.RequestScheme(req) + "://" + l.Domain + "/" + l.Slug,
		DestinationURL: l.DestinationURL,
		Title:          l.Title,
		Notes:          l.Notes,
		IsActive:       l.IsActive,
		RedirectType:   int(l.RedirectType),
		ExpiresAt:      l.ExpiresAt,
		ClickCount:     l.ClickCount,
		LastAccessedAt: l.LastAccessedAt,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		Version:        l.Version,
	}
}

func NewListLinksHandler(reg *shortener.Registry) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		limit, ok := queryInt(ctx, "limit", shortener.DefaultListLimit)
		if !ok {
			return
		}
		offset, ok := queryInt(ctx, "offset", 0)
		if !ok {
			return
		}
		links, err := reg.List(ctx.Req.Context(), shortener.ListFilter{
			Domain: ctx.Query("domain"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		out := make([]linkResponse, 0, len(links))
		for i := range links {
			out = append(out, toLinkResponse(ctx.Req, &links[i]))
		}
		ctx.JSON(http.StatusOK, out)
	}
}

func NewGetLinkHandler(reg *shortener.Registry) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		l, err := reg.GetByID(ctx.Req.Context(), id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, toLinkResponse(ctx.Req, l))
	}
}

func NewCreateLinkHandler(reg *shortener.Registry) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req createLinkRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		l, err := reg.Create(ctx.Req.Context(), shortener.Draft{
			Slug:           req.Slug,
			DestinationURL: req.DestinationURL,
			Domain:         req.Domain,
			Title:          req.Title,
			Notes:          req.Notes,
			ExpiresAt:      req.ExpiresAt,
			IsActive:       req.IsActive,
			RedirectType:   shortener.RedirectType(req.RedirectType),
		})
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, toLinkResponse(ctx.Req, l))
	}
}

func NewUpdateLinkHandler(reg *shortener.Registry) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		var req updateLinkRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		p := shortener.Patch{
			DestinationURL:  req.DestinationURL,
			Title:           req.Title,
			Notes:           req.Notes,
			IsActive:        req.IsActive,
			ExpiresAt:       req.ExpiresAt,
			ClearExpiry:     req.ClearExpiry,
			ExpectedVersion: req.Version,
		}
		if req.RedirectType != nil {
			rt := shortener.RedirectType(*req.RedirectType)
			p.RedirectType = &rt
		}
		l, err := reg.Update(ctx.Req.Context(), id, p)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, toLinkResponse(ctx.Req, l))
	}
}

func NewDeleteLinkHandler(reg *shortener.Registry) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		deleted, err := reg.Delete(ctx.Req.Context(), id)
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

type visitResponse struct {
	ID        int64     `json:"id"`
	ClickedAt time.Time `json:"clickedAt"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
}

type linkStatsResponse struct {
	LinkID         int64           `json:"linkId"`
	ClickCount     int64           `json:"clickCount"`
	LastAccessedAt *time.Time      `json:"lastAccessedAt"`
	Visits         []visitResponse `json:"visits"`
	NextCursor     int64           `json:"nextCursor,omitempty"`
}

// NewLinkStatsHandler pages the visit log of a link, newest first. cursor is
// the id of the last visit of the previous page.
func NewLinkStatsHandler(reg *shortener.Registry, visits shortener.VisitStore) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		limit, ok := queryInt(ctx, "limit", 20)
		if !ok {
			return
		}
		if limit == 0 || limit > 100 {
			ctx.AbortWithReason(http.StatusBadRequest, "invalid_query", "invalid limit")
			return
		}
		cursor, ok := queryInt(ctx, "cursor", 0)
		if !ok {
			return
		}

		l, err := reg.GetByID(ctx.Req.Context(), id)
		if err != nil {
			writeError(ctx, err)
			return
		}
		rows, err := visits.ListVisits(ctx.Req.Context(), id, limit, int64(cursor))
		if err != nil {
			writeError(ctx, err)
			return
		}

		resp := linkStatsResponse{
			LinkID:         l.ID,
			ClickCount:     l.ClickCount,
			LastAccessedAt: l.LastAccessedAt,
			Visits:         make([]visitResponse, 0, len(rows)),
		}
		for _, r := range rows {
			resp.Visits = append(resp.Visits, visitResponse{
				ID:        r.ID,
				ClickedAt: r.ClickedAt,
				IP:        r.IP,
				UserAgent: r.UserAgent,
				Referer:   r.Referer,
			})
		}
		if len(rows) == limit {
			resp.NextCursor = rows[len(rows)-1].ID
		}
		ctx.JSON(http.StatusOK, resp)
	}
}
