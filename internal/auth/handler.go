package auth

import (
	"net/http"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/internal/transport"
	"github.com/frahmantamala/care-access/pkg/logger"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type Handler struct {
	*transport.BaseHandler
	Tokens TokenValidator
}

func NewHandler(baseHandler *transport.BaseHandler, tokens TokenValidator) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Tokens:      tokens,
	}
}

type WhoAmIResponse struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthMiddleware puts the token's user on the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleServiceError(w, r, internal.ErrMissingToken)
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			h.Log(r).Warn("token validation failed", "error", err, "path", r.URL.Path)
			h.HandleServiceError(w, r, err)
			return
		}
		user, err := claims.User()
		if err != nil {
			h.HandleServiceError(w, r, err)
			return
		}

		ctx := internal.ContextWithUserID(r.Context(), user)
		ctx = logger.With(ctx, "user_id", user.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WhoAmI handles GET /me
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.RequireUser(w, r)
	if !ok {
		return
	}
	resp := WhoAmIResponse{UserID: userID.String()}
	if claims, err := h.Tokens.ValidateToken(h.ExtractTokenFromHeader(r)); err == nil && claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
