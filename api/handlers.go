package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"card-room-server/game"
	"card-room-server/roomerrors"
)

// Rooms is what the API needs from the room manager.
type Rooms interface {
	Snapshot(ctx context.Context, roomID string) (game.Snapshot, error)
	Dispatch(ctx context.Context, roomID string, a game.Action) error
	Live() int
}

// Authorizer validates an Authorization header and returns the caller id.
type Authorizer interface {
	FromHeader(header string) (string, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Rooms Rooms
	// Auth guards system calls. Nil leaves them open (local development).
	Auth Authorizer
	// WS upgrades /ws requests.
	WS http.HandlerFunc
}

// NewHandler creates a new API handler with the given dependencies.
func NewHandler(rooms Rooms, authz Authorizer, wsHandler http.HandlerFunc) *Handler {
	return &Handler{Rooms: rooms, Auth: authz, WS: wsHandler}
}

var systemCalls = map[string]game.ActionType{
	"openall":  game.ActionOpenAll,
	"newround": game.ActionNewRound,
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(), cors())

	r.GET("/healthz", h.Health)
	r.GET("/api/rooms/:id", h.RoomInfo)
	r.POST("/api/rooms/:id/systemcall/:command", h.requireAuth(), h.SystemCall)
	if h.WS != nil {
		r.GET("/ws", gin.WrapF(h.WS))
	}
	return r
}

// cors sets CORS headers and answers preflight requests.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Debug("request", "tag", "api", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Auth == nil {
			c.Next()
			return
		}
		caller, err := h.Auth.FromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Set("caller", caller)
		c.Next()
	}
}

// Health reports liveness and the number of running rooms.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "live_rooms": h.Rooms.Live()})
}

// RoomInfo returns the room's settings, round, owned cards, stats and
// participants. Hands are never exposed.
func (h *Handler) RoomInfo(c *gin.Context) {
	snap, err := h.Rooms.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SystemCall runs an operator command against a room.
func (h *Handler) SystemCall(c *gin.Context) {
	command := c.Param("command")
	t, ok := systemCalls[command]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command", "code": "bad_request"})
		return
	}
	roomID := game.NormalizeRoomID(c.Param("id"))
	if err := h.Rooms.Dispatch(c.Request.Context(), roomID, game.Action{Type: t}); err != nil {
		h.fail(c, err)
		return
	}
	slog.Info("system call executed", "tag", "api", "room", roomID, "command", command, "caller", c.GetString("caller"))
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "command": command})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "tag", "api", "path", c.Request.URL.Path, "error", err)
	}
	body := gin.H{"code": game.ErrorCode(err), "error": err.Error()}
	if status == http.StatusInternalServerError {
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, roomerrors.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, roomerrors.ErrMissingRoomID):
		return http.StatusBadRequest
	case errors.Is(err, roomerrors.ErrRoomClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
