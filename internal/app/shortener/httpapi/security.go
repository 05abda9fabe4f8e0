package httpapi

import (
	"net/http"
	"time"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
)

type apiKeyInfoResponse struct {
	Exists     bool       `json:"exists"`
	Prefix     string     `json:"prefix,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

type apiKeyCreatedResponse struct {
	APIKey    string    `json:"apiKey"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"createdAt"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func NewAPIKeyInfoHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		k, err := accounts.CurrentAPIKey(ctx.Req.Context())
		if err != nil {
			writeError(ctx, err)
			return
		}
		if k == nil {
			ctx.JSON(http.StatusOK, apiKeyInfoResponse{Exists: false})
			return
		}
		ctx.JSON(http.StatusOK, apiKeyInfoResponse{
			Exists:     true,
			Prefix:     k.KeyPrefix,
			CreatedAt:  &k.CreatedAt,
			LastUsedAt: k.LastUsedAt,
		})
	}
}

// NewGenerateAPIKeyHandler replaces the instance key. The plaintext is only
// returned here.
func NewGenerateAPIKeyHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		userID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		plain, k, err := accounts.GenerateAPIKey(ctx.Req.Context(), userID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, apiKeyCreatedResponse{
			APIKey:    plain,
			Prefix:    k.KeyPrefix,
			CreatedAt: k.CreatedAt,
		})
	}
}

func NewChangePasswordHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		userID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		var req changePasswordRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		err := accounts.ChangePassword(ctx.Req.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}
