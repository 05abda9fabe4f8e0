package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
)

// APIKeyHeader carries the machine credential accepted next to a bearer JWT.
const APIKeyHeader = "X-Api-Key"

// APIKeyVerifier resolves a plaintext API key to the identity it acts as.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, key string) (auth.Identity, error)
}

// parseBearer 解析 Authorization header 中的 Bearer token，格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// AuthRequired accepts either a bearer JWT or, when keys is non-nil, an
// X-Api-Key header. The JWT wins when both are present.
func AuthRequired(ts auth.TokenService, keys APIKeyVerifier) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		header := ctx.Req.Header.Get("Authorization")
		apiKey := strings.TrimSpace(ctx.Req.Header.Get(APIKeyHeader))

		switch {
		case header != "":
			token := parseBearer(header)
			if token == "" {
				ctx.AbortWithError(http.StatusUnauthorized, "invalid authorization format")
				return
			}
			claim, err := ts.Verify(token)
			if err != nil {
				ctx.AbortWithError(http.StatusUnauthorized, "invalid token")
				return
			}
			ctx.Req = ctx.Req.WithContext(auth.WithIdentity(ctx.Req.Context(), auth.Identity{
				UserID: claim.UserID,
				Role:   claim.Role,
			}))
		case apiKey != "" && keys != nil:
			id, err := keys.VerifyAPIKey(ctx.Req.Context(), apiKey)
			if err != nil {
				ctx.AbortWithError(http.StatusUnauthorized, "invalid api key")
				return
			}
			ctx.Req = ctx.Req.WithContext(auth.WithIdentity(ctx.Req.Context(), id))
		default:
			ctx.AbortWithError(http.StatusUnauthorized, "missing credentials")
			return
		}
		ctx.Next()
	}
}

// RequireRole 要求用户具有指定角色
func RequireRole(role string) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.AbortWithError(http.StatusUnauthorized, "unauthorized")
			return
		}
		if id.Role != role {
			ctx.AbortWithError(http.StatusForbidden, "forbidden")
			return
		}
		ctx.Next()
	}
}
