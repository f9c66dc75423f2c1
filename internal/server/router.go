package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/propdeck/backend/internal/auth"
	"github.com/propdeck/backend/internal/interactions"
	"github.com/propdeck/backend/internal/settings"
	"github.com/propdeck/backend/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "propdeck_user_id"

var (
	errMissingTokenManager        = errors.New("token manager dependency required")
	errMissingAccountsService     = errors.New("accounts service dependency required")
	errMissingInteractionsService = errors.New("interactions service dependency required")
	errMissingSettingsService     = errors.New("settings service dependency required")
)

// TokenManager issues and verifies the bearer credentials both transports accept.
type TokenManager interface {
	Issue(userID, email string) (string, int64, error)
	Verify(token string) (auth.Claims, error)
}

// AccountsService resolves and manages user accounts.
type AccountsService interface {
	Register(ctx context.Context, input users.RegistrationInput) (users.Account, error)
	Authenticate(ctx context.Context, email, password string) (users.Account, error)
	FindByID(ctx context.Context, id string) (users.Account, error)
}

// Dependencies wires the HTTP and socket adapters to their collaborators.
type Dependencies struct {
	Tokens       TokenManager
	Accounts     AccountsService
	Interactions *interactions.Service
	Settings     *settings.Service
	Hub          *Hub
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin handler serving the REST API and the socket
// endpoint. Both adapters call the same interaction service, so a REST write
// and a socket write to one (user, property) key follow the same rules.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Accounts == nil {
		return nil, errMissingAccountsService
	}
	if deps.Interactions == nil {
		return nil, errMissingInteractionsService
	}
	if deps.Settings == nil {
		return nil, errMissingSettingsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.Tokens,
		accounts:     deps.Accounts,
		interactions: deps.Interactions,
		settings:     deps.Settings,
		hub:          hub,
		logger:       logger,
	}

	router.GET("/", handler.handleHealth)
	router.POST("/api/users/signup", handler.handleSignup)
	router.POST("/api/users/login", handler.handleLogin)
	router.GET("/socket", handler.handleSocket)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/properties", handler.handleListProperties)
	protected.POST("/properties", handler.handleUpsertProperty)
	protected.DELETE("/properties", handler.handlePurgeProperties)
	protected.GET("/settings", handler.handleGetSettings)
	protected.POST("/settings", handler.handleUpsertSettings)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	accounts     AccountsService
	interactions *interactions.Service
	settings     *settings.Service
	hub          *Hub
	logger       *zap.Logger
}

// apiResponse is the envelope every REST handler and socket ack shares.
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func okResponse(message string, data interface{}) apiResponse {
	return apiResponse{Success: true, Message: message, Data: data}
}

func errorResponse(message string, err error) apiResponse {
	response := apiResponse{Success: false, Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	return response
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "PropDeck API is running"})
}

type signupPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
	Phone    string `json:"phone"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authenticatedPayload struct {
	User  users.PublicAccount `json:"user"`
	Token string              `json:"token"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var payload signupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Error creating user", err))
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), users.RegistrationInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		Age:      payload.Age,
		Phone:    payload.Phone,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, errorResponse("User with this email already exists", nil))
			return
		}
		if errors.Is(err, users.ErrInvalidRegistration) {
			c.JSON(http.StatusBadRequest, errorResponse("Error creating user", err))
			return
		}
		h.logger.Error("signup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Error creating user", err))
		return
	}

	token, _, err := h.tokens.Issue(account.ID, account.Email)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Error creating user", err))
		return
	}

	c.JSON(http.StatusCreated, okResponse("User created successfully", authenticatedPayload{
		User:  account.Public(),
		Token: token,
	}))
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Error during login", err))
		return
	}

	account, err := h.accounts.Authenticate(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidLogin) {
			c.JSON(http.StatusUnauthorized, errorResponse("Invalid email or password", nil))
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Error during login", err))
		return
	}

	token, _, err := h.tokens.Issue(account.ID, account.Email)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse("Error during login", err))
		return
	}

	c.JSON(http.StatusOK, okResponse("Login successful", authenticatedPayload{
		User:  account.Public(),
		Token: token,
	}))
}

// resolveIdentity verifies the bearer token and confirms the account is still
// present and active. Shared by the REST middleware and the socket handshake.
func (h *httpHandler) resolveIdentity(ctx context.Context, rawToken string) (users.Account, error) {
	claims, err := h.tokens.Verify(rawToken)
	if err != nil {
		return users.Account{}, err
	}
	return h.accounts.FindByID(ctx, claims.UserID)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("Access denied. No token provided.", nil))
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	account, err := h.resolveIdentity(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("Access denied. Token expired.", nil))
		case errors.Is(err, users.ErrAccountNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("Access denied. User not found or inactive.", nil))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("Access denied. Invalid token.", nil))
		}
		return
	}

	c.Set(userIDContextKey, account.ID)
	c.Next()
}

// propertyUpsertPayload is the upsert body shared by REST and the socket
// updateProperty event. Comment stays a pointer so an absent field and an
// empty string both normalize to "".
type propertyUpsertPayload struct {
	PropertyID  string  `json:"propertyId"`
	ColumnIndex int     `json:"columnIndex"`
	Position    int     `json:"position"`
	Status      string  `json:"status"`
	Comment     *string `json:"comment"`
}

// upsertProperty translates the wire payload and applies it through the one
// shared engine.
func (h *httpHandler) upsertProperty(ctx context.Context, userID string, payload propertyUpsertPayload) (interactions.Outcome, error) {
	uid, err := interactions.NewUserID(userID)
	if err != nil {
		return interactions.Outcome{}, err
	}
	propertyID, err := interactions.NewPropertyID(payload.PropertyID)
	if err != nil {
		return interactions.Outcome{}, err
	}
	status, err := interactions.ParseStatus(payload.Status)
	if err != nil {
		return interactions.Outcome{}, err
	}
	desired, err := interactions.NewDesiredState(payload.ColumnIndex, payload.Position, status, payload.Comment)
	if err != nil {
		return interactions.Outcome{}, err
	}
	return h.interactions.UpsertState(ctx, uid, propertyID, desired)
}

func (h *httpHandler) listProperties(ctx context.Context, userID string) ([]interactions.CurrentState, error) {
	uid, err := interactions.NewUserID(userID)
	if err != nil {
		return nil, err
	}
	return h.interactions.ListCurrentStates(ctx, uid)
}

func (h *httpHandler) handleListProperties(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	states, err := h.listProperties(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list properties", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, errorResponse("Error fetching properties", err))
		return
	}
	c.JSON(http.StatusOK, okResponse("Properties fetched successfully", states))
}

func (h *httpHandler) handleUpsertProperty(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var payload propertyUpsertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Error creating/updating property", err))
		return
	}

	outcome, err := h.upsertProperty(c.Request.Context(), userID, payload)
	if err != nil {
		if interactions.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, errorResponse("Error creating/updating property", err))
			return
		}
		h.logger.Error("failed to upsert property", zap.Error(err),
			zap.String("user_id", userID), zap.String("property_id", payload.PropertyID))
		c.JSON(http.StatusInternalServerError, errorResponse("Error creating/updating property", err))
		return
	}

	state := interactions.ResolveCurrentState(outcome.Record)
	if outcome.Action == interactions.ActionCreated {
		c.JSON(http.StatusCreated, okResponse("Property created successfully", state))
		return
	}
	message := "Property updated successfully"
	if outcome.Action == interactions.ActionNoOp {
		message = "Property state unchanged, no update needed"
	}
	c.JSON(http.StatusOK, okResponse(message, state))
}

type purgeResultPayload struct {
	DeletedCount int64 `json:"deletedCount"`
}

func (h *httpHandler) handlePurgeProperties(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	uid, err := interactions.NewUserID(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Error deleting properties", err))
		return
	}
	deleted, err := h.interactions.PurgeAll(c.Request.Context(), uid)
	if err != nil {
		h.logger.Error("failed to purge properties", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, errorResponse("Error deleting properties", err))
		return
	}
	c.JSON(http.StatusOK, okResponse("Properties deleted successfully", purgeResultPayload{DeletedCount: deleted}))
}

type settingsPayload struct {
	Settings settings.Data `json:"settings"`
}

func (h *httpHandler) handleGetSettings(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	view, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to fetch settings", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, errorResponse("Internal server error", err))
		return
	}
	c.JSON(http.StatusOK, okResponse("Settings fetched successfully", view))
}

func (h *httpHandler) handleUpsertSettings(c *gin.Context) {
	userID := c.GetString(userIDContextKey)

	var payload settingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Internal server error", err))
		return
	}

	view, created, err := h.settings.Upsert(c.Request.Context(), userID, payload.Settings)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, errorResponse("Internal server error", err))
			return
		}
		h.logger.Error("failed to upsert settings", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, errorResponse("Internal server error", err))
		return
	}

	if created {
		c.JSON(http.StatusCreated, okResponse("Settings created successfully", view))
		return
	}
	c.JSON(http.StatusOK, okResponse("Settings updated successfully", view))
}
