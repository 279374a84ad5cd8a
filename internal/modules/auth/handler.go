package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"micromart/internal/logging"
	"micromart/internal/pkg/response"
)

const (
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
)

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service    *Service
	log        logging.Logger
	retryAfter time.Duration
}

func NewHandler(service *Service, log logging.Logger) *Handler {
	return &Handler{service: service, log: log, retryAfter: 2 * time.Second}
}

// RegisterRoutes mounts the auth API on g (normally /api/auth). internal
// guards the peer-service endpoints.
func (h *Handler) RegisterRoutes(g *gin.RouterGroup, internal gin.HandlerFunc) {
	g.POST("/login", h.Login)
	g.POST("/register", h.Register)
	g.GET("/validate", h.Validate)
	g.POST("/logout", h.Logout)
	g.POST("/refresh", h.Refresh)
	g.POST("/verify-email", h.VerifyEmail)
	g.GET("/health", h.Health)

	wishlist := g.Group("/wishlist", h.RequireIdentity())
	{
		wishlist.GET("", h.GetWishlist)
		wishlist.POST("/:productId", h.AddToWishlist)
		wishlist.DELETE("/:productId", h.RemoveFromWishlist)
	}

	g.GET("/internal/users/:email", internal, h.InternalUser)
}

// Login exchanges credentials for an access/refresh pair.
// @Summary  Log in
// @Success  200 {object} LoginResponse
// @Failure  401 {object} response.ErrorBody
// @Failure  403 {object} response.ErrorBody "email not verified"
// @Router   /api/auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Fullname:     res.User.FullName(),
		Email:        res.User.Email,
	})
}

// Register creates an unverified account and sends the verification mail.
// @Summary  Register
// @Success  201 {object} map[string]string
// @Failure  400 {object} response.ErrorBody "violated rule or duplicate account"
// @Router   /api/auth/register [POST]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if _, err := h.service.Register(c.Request.Context(), req); err != nil {
		h.writeError(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Registration successful")
}

// Validate resolves the bearer token to the caller's identity.
// @Summary  Validate access token
// @Success  200 {object} ValidateResponse
// @Failure  401 {object} response.ErrorBody
// @Router   /api/auth/validate [GET]
func (h *Handler) Validate(c *gin.Context) {
	token, ok := BearerToken(c.GetHeader("Authorization"))
	if !ok {
		response.Unauthorized(c)
		return
	}

	id, err := h.service.Validate(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ValidateResponse{
		ID:          id.UserID,
		Username:    id.Email,
		Email:       id.Email,
		Permissions: []string{},
		Active:      true,
	})
}

// Logout revokes the supplied tokens. It succeeds for any input.
// @Summary  Log out
// @Success  200 {object} map[string]string
// @Failure  503 {object} response.ErrorBody
// @Router   /api/auth/logout [POST]
func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	// An empty or unreadable body just means there is nothing to revoke.
	_ = c.ShouldBindJSON(&req)

	if err := h.service.Logout(c.Request.Context(), req.Token, req.RefreshToken); err != nil {
		h.writeError(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Logged out")
}

// Refresh rotates a refresh token into a new pair.
// @Summary  Refresh tokens
// @Success  200 {object} LoginResponse
// @Failure  401 {object} response.ErrorBody
// @Router   /api/auth/refresh [POST]
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Unauthorized(c)
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Email:        res.User.Email,
	})
}

// VerifyEmail consumes a verification token from the query string.
// @Summary  Verify email
// @Param    token query string true "verification token"
// @Success  200 {object} map[string]string
// @Failure  400 {object} map[string]string
// @Router   /api/auth/verify-email [POST]
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Message(c, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}

	ok, err := h.service.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !ok {
		response.Message(c, http.StatusBadRequest, "Invalid or expired verification token")
		return
	}
	response.Message(c, http.StatusOK, "Email verified successfully")
}

func (h *Handler) Health(c *gin.Context) {
	response.Message(c, http.StatusOK, "Auth service is running")
}

// RequireIdentity validates the bearer token and stores the identity on the
// context for the handlers behind it.
func (h *Handler) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c)
			return
		}
		id, err := h.service.Validate(c.Request.Context(), token)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxUserID, id.UserID)
		c.Set(ctxUserEmail, id.Email)
		c.Next()
	}
}

func (h *Handler) GetWishlist(c *gin.Context) {
	list, err := h.service.Wishlist(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

func (h *Handler) AddToWishlist(c *gin.Context) {
	added, err := h.service.AddToWishlist(c.Request.Context(), c.GetString(ctxUserID), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !added {
		response.Error(c, http.StatusBadRequest, "ALREADY_IN_WISHLIST", "product already in wishlist")
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	removed, err := h.service.RemoveFromWishlist(c.Request.Context(), c.GetString(ctxUserID), c.Param("productId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !removed {
		response.Error(c, http.StatusBadRequest, "NOT_IN_WISHLIST", "product not in wishlist")
		return
	}
	c.Status(http.StatusOK)
}

// InternalUser is the peer lookup used by other services.
func (h *Handler) InternalUser(c *gin.Context) {
	user, err := h.service.UserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, InternalUserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Fullname:      user.FullName(),
		EmailVerified: user.EmailVerified,
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case IsTokenRejection(err):
		response.Unauthorized(c)
	case errors.Is(err, ErrStorageUnavailable):
		h.log.Error(c.Request.Context(), "storage unavailable", "path", c.FullPath(), "error", err)
		response.Unavailable(c, h.retryAfter)
	case errors.As(err, &verr):
		response.FieldError(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Field, verr.Error())
	case errors.Is(err, ErrDuplicateAccount):
		response.Error(c, http.StatusBadRequest, "USER_EXISTS", "user already exists")
	case errors.Is(err, ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, ErrUnverifiedAccount):
		response.Error(c, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "please verify your email before logging in")
	case errors.Is(err, ErrUserNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "user not found")
	default:
		h.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// BearerToken extracts the credential from an "Authorization: Bearer x"
// header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
