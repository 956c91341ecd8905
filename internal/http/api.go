package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tiny-bank/internal/auth"
	"tiny-bank/internal/domain"
	"tiny-bank/internal/exporter"
	"tiny-bank/internal/service"
	"tiny-bank/internal/storage"
)

const (
	usernameKey     = "username"
	statementURLTTL = 15 * time.Minute
	bearerPrefix    = "Bearer "
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users     service.UserService
	ledger    service.LedgerService
	tokens    *auth.TokenIssuer
	exports   exporter.Manager
	storage   storage.Service
	bucket    string
	keyPrefix string
}

// NewHandler builds the API. exports and store may be nil when statement
// archiving is not configured.
func NewHandler(users service.UserService, ledger service.LedgerService, tokens *auth.TokenIssuer, exports exporter.Manager, store storage.Service, bucket, keyPrefix string) *Handler {
	return &Handler{
		users:     users,
		ledger:    ledger,
		tokens:    tokens,
		exports:   exports,
		storage:   store,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/users", h.register)
		api.POST("/sessions", h.login)

		account := api.Group("/account", h.authMiddleware())
		{
			account.GET("", h.getAccount)
			account.DELETE("", h.deactivate)
			account.POST("/deposit", h.deposit)
			account.POST("/withdraw", h.withdraw)
			account.POST("/transfer", h.transfer)
			account.GET("/transactions", h.listTransactions)
			account.GET("/statements", h.listStatements)
			account.POST("/statements", h.createStatement)
			account.GET("/statements/:id", h.getStatement)
			account.DELETE("/statements/:id", h.cancelStatement)
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authMiddleware resolves the bearer token to an active user.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		username, err := h.tokens.Parse(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}
		active, err := h.users.UserExists(c.Request.Context(), username)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": service.ErrUserInactive.Error()})
			return
		}
		c.Set(usernameKey, username)
		c.Next()
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type amountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type transferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &domain.User{Username: req.Username, Password: req.Password})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userToResponse(*user))
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.tokens.Issue(user.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.ledger.GetAccount(c.Request.Context(), c.GetString(usernameKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, accountToResponse(*account))
}

func (h *Handler) deposit(c *gin.Context) {
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	username := c.GetString(usernameKey)
	if err := h.ledger.Deposit(c.Request.Context(), username, amount); err != nil {
		writeError(c, err)
		return
	}
	h.respondWithBalance(c, username, gin.H{})
}

func (h *Handler) withdraw(c *gin.Context) {
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	username := c.GetString(usernameKey)
	withdrawn, err := h.ledger.Withdraw(c.Request.Context(), username, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondWithBalance(c, username, gin.H{"withdrawn": formatAmount(withdrawn)})
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := service.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	username := c.GetString(usernameKey)
	to := strings.TrimSpace(req.To)
	exists, err := h.users.UserExists(ctx, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if !exists {
		writeError(c, fmt.Errorf("%w: %s", service.ErrUserNotFound, to))
		return
	}

	transferred, err := h.ledger.Transfer(ctx, username, to, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondWithBalance(c, username, gin.H{"transferred": formatAmount(transferred), "to": to})
}

func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.ledger.GetTransactions(c.Request.Context(), c.GetString(usernameKey))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]TransactionResponse, len(txs))
	for i := range txs {
		resp[i] = transactionToResponse(txs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deactivate(c *gin.Context) {
	username := c.GetString(usernameKey)
	if err := h.users.DeactivateUser(c.Request.Context(), username); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": username})
}

func (h *Handler) createStatement(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statement export not configured"})
		return
	}
	job, err := h.exports.Enqueue(c.Request.Context(), c.GetString(usernameKey))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, exportToResponse(*job, ""))
}

func (h *Handler) getStatement(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statement export not configured"})
		return
	}
	job, ok := h.ownedExport(c)
	if !ok {
		return
	}

	var downloadURL string
	if job.Status == domain.ExportStatusCompleted && h.storage != nil {
		url, err := h.storage.GetObjectURL(c.Request.Context(), h.bucket, job.Key, statementURLTTL)
		if err != nil {
			writeError(c, err)
			return
		}
		downloadURL = url
	}
	c.JSON(http.StatusOK, exportToResponse(*job, downloadURL))
}

// cancelStatement stops a pending or running export; finished jobs are returned as they are.
func (h *Handler) cancelStatement(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statement export not configured"})
		return
	}
	job, ok := h.ownedExport(c)
	if !ok {
		return
	}

	cancelCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := h.exports.Cancel(cancelCtx, job.ID); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		writeError(c, err)
		return
	}

	job, err := h.exports.Get(c.Request.Context(), job.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exportToResponse(*job, ""))
}

// listStatements lists the archived statement objects of the caller.
func (h *Handler) listStatements(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	prefix := exporter.UserPrefix(h.keyPrefix, c.GetString(usernameKey))
	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ownedExport(c *gin.Context) (*domain.StatementExport, bool) {
	job, err := h.exports.Get(c.Request.Context(), c.Param("id"))
	if err != nil || job.Username != c.GetString(usernameKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": exporter.ErrExportNotFound.Error()})
		return nil, false
	}
	return job, true
}

func (h *Handler) respondWithBalance(c *gin.Context, username string, resp gin.H) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), username)
	if err != nil {
		writeError(c, err)
		return
	}
	resp["balance"] = formatAmount(balance)
	c.JSON(http.StatusOK, resp)
}

func bindAmount(c *gin.Context) (decimal.Decimal, bool) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return decimal.Zero, false
	}
	amount, err := service.ParseAmount(req.Amount)
	if err != nil {
		writeError(c, err)
		return decimal.Zero, false
	}
	return amount, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, exporter.ErrExportNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrAccountAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSameAccount),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidPassword):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrUserInactive):
		status = http.StatusForbidden
	case errors.Is(err, exporter.ErrNotStarted):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
