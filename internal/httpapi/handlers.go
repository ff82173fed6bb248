package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/identity"
	"callbridge/internal/session"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PresenceReader is the read side of presence the HTTP surface needs:
// online decoration for the contact list and the busy check on call setup.
type PresenceReader interface {
	OnlineSet(ctx context.Context, userIDs []int64) (map[int64]bool, error)
	InCall(ctx context.Context, userID int64) (bool, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Users    *identity.Service
	Sessions *session.Service
	Auth     *auth.Manager
	Presence PresenceReader
	Audit    *audit.Service
	DB       *sql.DB
}

// --- Accounts ---

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	u, err := h.Users.Register(c.Request.Context(), identity.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidInput):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username, email and password required"})
		case errors.Is(err, identity.ErrAlreadyExists):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "username": u.Username, "public_key": u.PublicKey})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), auth.FormatUserID(u.ID), u.Username)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user":          gin.H{"id": u.ID, "username": u.Username},
	})
}

// --- Contacts ---

// ListUsers returns every other account, decorated with online state. A
// presence outage degrades to online=false rather than failing the list.
func (h Handlers) ListUsers(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	users, err := h.Users.List(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user list failed"})
		return
	}

	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	var online map[int64]bool
	if h.Presence != nil {
		online, _ = h.Presence.OnlineSet(c.Request.Context(), ids)
	}

	out := make([]identity.Listing, len(users))
	for i, u := range users {
		out[i] = identity.Listing{ID: u.ID, Username: u.Username, Online: online[u.ID]}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// --- Call lifecycle ---

// InitiateCall opens a pending session toward the callee. If the callee
// already holds a busy slot the call is refused up front; the callee may
// still report user_busy over the socket for races this check misses.
func (h Handlers) InitiateCall(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	calleeID, err := auth.ParseUserID(c.Param("callee_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid callee_id"})
		return
	}

	if h.Presence != nil {
		if busy, err := h.Presence.InCall(c.Request.Context(), calleeID); err == nil && busy {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "user is busy"})
			return
		}
	}

	cs, err := h.Sessions.Create(c.Request.Context(), callerID, calleeID)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": cs.SessionID,
		"caller_id":  cs.CallerID,
		"callee_id":  cs.CalleeID,
		"status":     cs.Status,
	})
}

func (h Handlers) CallStatus(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	cs, err := h.Sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	if !cs.HasParticipant(userID) {
		h.auditTransition(c, userID, cs.SessionID, "status lookup by non-participant")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this call"})
		return
	}

	resp := gin.H{
		"session_id": cs.SessionID,
		"caller_id":  cs.CallerID,
		"callee_id":  cs.CalleeID,
		"status":     cs.Status,
		"created_at": cs.CreatedAt,
	}
	if cs.EndedAt != nil {
		resp["ended_at"] = cs.EndedAt
	}
	if caller, ok, err := h.Users.Get(c.Request.Context(), cs.CallerID); err == nil && ok {
		resp["caller_name"] = caller.Username
	}
	if callee, ok, err := h.Users.Get(c.Request.Context(), cs.CalleeID); err == nil && ok {
		resp["callee_name"] = callee.Username
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) AnswerCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	sessionID := c.Param("session_id")

	cs, err := h.Sessions.Answer(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			h.auditTransition(c, userID, sessionID, "answer attempt by non-callee")
		}
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": cs.SessionID, "status": cs.Status})
}

func (h Handlers) RejectCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	sessionID := c.Param("session_id")

	cs, err := h.Sessions.Reject(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			h.auditTransition(c, userID, sessionID, "reject attempt by non-callee")
		}
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": cs.SessionID, "status": cs.Status})
}

// Healthz reports readiness. With a database configured it pings it, so a
// wedged pool takes the instance out of rotation.
func (h Handlers) Healthz(c *gin.Context) {
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// sessionError maps session service errors onto HTTP statuses.
func (h Handlers) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, session.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed for this call"})
	case errors.Is(err, session.ErrAlreadyTerminal), errors.Is(err, session.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already resolved"})
	case errors.Is(err, session.ErrInvalidParticipants):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "caller and callee must be distinct users"})
	case errors.Is(err, session.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call operation failed"})
	}
}

func (h Handlers) auditTransition(c *gin.Context, userID int64, sessionID, message string) {
	if h.Audit == nil {
		return
	}
	_ = h.Audit.UnauthorizedTransition(c.Request.Context(), userID, sessionID, message)
}
