package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zufan/internal/auth"
	"zufan/internal/models"
	"zufan/internal/service"
)

// Handler wires the session-service HTTP routes to storage. The route
// shapes and status codes follow the contract the chat client expects:
// list/create under /sessions, get/delete under /sessions/:id, and a
// flat /messages endpoint for appends.
type Handler struct {
	sessions *service.Sessions
	auth     *auth.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(sessions *service.Sessions, authService *auth.Service) *Handler {
	return &Handler{
		sessions: sessions,
		auth:     authService,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	chatAPI := router.Group("/api/chat")
	chatAPI.Use(h.auth.Middleware())
	chatAPI.GET("/sessions", h.listSessions)
	chatAPI.POST("/sessions", h.createSession)
	chatAPI.GET("/sessions/:id", h.getSession)
	chatAPI.DELETE("/sessions/:id", h.deleteSession)
	chatAPI.POST("/messages", h.addMessage)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *Handler) listSessions(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sessions"})
		return
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) createSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and ID are required"})
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), userID, req.ID, req.Title)
	if err != nil {
		if errors.Is(err, service.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Session already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) getSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch session"})
		}
		return
	}
	if session.Messages == nil {
		session.Messages = []models.Message{}
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) deleteSession(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(c.Request.Context(), userID, c.Param("id")); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) addMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		SessionID string            `json:"sessionId"`
		ID        string            `json:"id"`
		Role      models.Role       `json:"role"`
		Content   string            `json:"content"`
		Citations []models.Citation `json:"citations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.ID == "" || req.Role == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID, message ID, role, and content are required"})
		return
	}
	msg := models.Message{
		ID:        req.ID,
		Role:      req.Role,
		Content:   req.Content,
		Citations: req.Citations,
	}
	created, err := h.sessions.AddMessage(c.Request.Context(), userID, req.SessionID, msg)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		case errors.Is(err, service.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "Message already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add message"})
		}
		return
	}
	c.JSON(http.StatusCreated, created)
}
