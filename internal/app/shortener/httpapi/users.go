package httpapi

import (
	"net/http"
	"time"

	"github.com/emanueledeamicis/OpenShort/gee"
	"github.com/emanueledeamicis/OpenShort/internal/app/shortener/account"
	"github.com/emanueledeamicis/OpenShort/internal/platform/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// userResponse never carries the password hash.
type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(u *account.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func NewLoginHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req credentialsRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		token, u, err := accounts.Login(ctx.Req.Context(), req.Email, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, tokenResponse{Token: token, Email: u.Email})
	}
}

func NewRegisterHandler(accounts *account.Service, enabled bool) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if !enabled {
			ctx.AbortWithReason(http.StatusForbidden, "registration_disabled", "registration is disabled")
			return
		}
		var req credentialsRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		token, u, err := accounts.Register(ctx.Req.Context(), req.Email, req.Password)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, tokenResponse{Token: token, Email: u.Email})
	}
}

func NewListUsersHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		users, err := accounts.ListUsers(ctx.Req.Context())
		if err != nil {
			writeError(ctx, err)
			return
		}
		out := make([]userResponse, 0, len(users))
		for i := range users {
			out = append(out, toUserResponse(&users[i]))
		}
		ctx.JSON(http.StatusOK, out)
	}
}

func NewCreateUserHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		var req createUserRequest
		if err := ctx.BindJSON(&req); err != nil {
			return
		}
		u, err := accounts.CreateUser(ctx.Req.Context(), req.Email, req.Password, req.Role)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, toUserResponse(u))
	}
}

func NewDeleteUserHandler(accounts *account.Service) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		actorID, ok := mustGetUserID(ctx)
		if !ok {
			return
		}
		id, ok := pathID(ctx)
		if !ok {
			return
		}
		deleted, err := accounts.DeleteUser(ctx.Req.Context(), actorID, id)
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

func NewMeHandler() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		id, ok := auth.GetIdentity(ctx.Req.Context())
		if !ok {
			ctx.AbortWithError(http.StatusInternalServerError, "missing identity")
			return
		}
		ctx.JSON(http.StatusOK, map[string]any{
			"userId": id.UserID,
			"role":   id.Role,
			"apiKey": id.APIKeyID != 0,
		})
	}
}
