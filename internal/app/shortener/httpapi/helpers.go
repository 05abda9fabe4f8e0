package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
)

// writeError maps domain errors to the JSON error body.
func writeError(ctx *gee.Context, err error) {
	if ve, ok := shortener.IsValidation(err); ok {
		ctx.AbortWithReason(http.StatusBadRequest, string(ve.Reason), ve.Message)
		return
	}
	switch {
	case errors.Is(err, shortener.ErrConcurrencyConflict):
		ctx.AbortWithReason(http.StatusConflict, "concurrency_conflict", "the link was modified by someone else; reload and retry")
	case errors.Is(err, shortener.ErrConflict):
		ctx.AbortWithReason(http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, shortener.ErrNotFound):
		ctx.AbortWithError(http.StatusNotFound, "not found")
	case errors.Is(err, shortener.ErrAllocationExhausted):
		ctx.AbortWithReason(http.StatusServiceUnavailable, "allocation_exhausted", "could not allocate a unique slug, try again")
	case errors.Is(err, shortener.ErrBadInput):
		ctx.AbortWithReason(http.StatusBadRequest, "bad_input", err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		ctx.AbortWithReason(http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, account.ErrInvalidEmail):
		ctx.AbortWithReason(http.StatusBadRequest, "invalid_email", err.Error())
	case errors.Is(err, account.ErrWeakPassword):
		ctx.AbortWithReason(http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, account.ErrPasswordMismatch):
		ctx.AbortWithReason(http.StatusBadRequest, "password_mismatch", err.Error())
	case errors.Is(err, auth.ErrUnknownRole):
		ctx.AbortWithReason(http.StatusBadRequest, "invalid_role", "role must be admin or user")
	case errors.Is(err, account.ErrDeleteSelf):
		ctx.AbortWithReason(http.StatusBadRequest, "delete_self", err.Error())
	default:
		slog.Error("request failed", "err", err, "method", ctx.Method, "path", ctx.Path)
		ctx.AbortWithError(http.StatusInternalServerError, "internal error")
	}
}

// mustGetUserID 从上下文中获取用户ID，失败时已写入错误响应
func mustGetUserID(ctx *gee.Context) (int64, bool) {
	identity, ok := auth.GetIdentity(ctx.Req.Context())
	if !ok {
		ctx.AbortWithError(http.StatusUnauthorized, "not login")
		return 0, false
	}
	userID, err := strconv.ParseInt(identity.UserID, 10, 64)
	if err != nil || userID <= 0 {
		ctx.AbortWithError(http.StatusUnauthorized, "invalid identity")
		return 0, false
	}
	return userID, true
}

// pathID parses the :id route parameter.
func pathID(ctx *gee.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ctx.AbortWithReason(http.StatusBadRequest, "invalid_id", "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter; fallback when absent.
func queryInt(ctx *gee.Context, key string, fallback int) (int, bool) {
	v := ctx.Query(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		ctx.AbortWithReason(http.StatusBadRequest, "invalid_query", "invalid "+key)
		return 0, false
	}
	return n, true
}
