package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/feliven/coffeetable/internal/domain"
	"github.com/feliven/coffeetable/internal/relay/hub"
	"github.com/feliven/coffeetable/internal/relay/repository"
	"github.com/feliven/coffeetable/internal/relay/service"
	"github.com/feliven/coffeetable/lib/logger/sl"
)

type RoomController struct {
	rooms    service.RoomInteractor
	hub      *hub.Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(rooms service.RoomInteractor, h *hub.Hub, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms: rooms,
		hub:   h,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		SessionID string `json:"session_uuid" binding:"required"`
		Label     string `json:"label"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), req.SessionID, req.Label)
	if err != nil {
		ctx.JSON(roomErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, room)
}

func (c *RoomController) ResolveRoom(ctx *gin.Context) {
	sess, err := c.rooms.Resolve(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		ctx.JSON(roomErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, sess)
}

// AppendEvent is the pull transport's send path. The event goes through the
// log first, then out to every push subscriber, so both transports observe
// the same ordered stream.
func (c *RoomController) AppendEvent(ctx *gin.Context) {
	var env domain.Envelope
	if err := ctx.ShouldBindJSON(&env); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid event body", "details": err.Error()})
		return
	}

	code := ctx.Param("code")
	assigned, err := c.rooms.Append(ctx.Request.Context(), code, env)
	if err != nil {
		ctx.JSON(roomErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.hub.Broadcast(code, assigned)
	ctx.JSON(http.StatusAccepted, gin.H{"seq": assigned.Seq})
}

func (c *RoomController) ListEvents(ctx *gin.Context) {
	since, err := strconv.ParseInt(ctx.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid since cursor"})
		return
	}

	events, last, err := c.rooms.EventsSince(ctx.Request.Context(), ctx.Param("code"), since)
	if err != nil {
		ctx.JSON(roomErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []domain.Envelope{}
	}
	ctx.JSON(http.StatusOK, gin.H{"events": events, "last_id": last})
}

// JoinRoom upgrades to the push transport. Inbound envelopes from the socket
// take the same log-then-broadcast path as posted events.
func (c *RoomController) JoinRoom(ctx *gin.Context) {
	code := ctx.Param("code")

	if _, err := c.rooms.Resolve(ctx.Request.Context(), code); err != nil {
		ctx.JSON(roomErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", "room", code, sl.Err(err))
		return
	}

	sub := c.hub.Register(code, conn)
	defer sub.Close()

	conn.SetReadLimit(64 * 1024)
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", "room", code, sl.Err(err))
			}
			return
		}

		assigned, err := c.rooms.Append(context.Background(), code, env)
		if err != nil {
			c.log.Debug("dropping invalid event", "room", code, sl.Err(err))
			continue
		}
		c.hub.Broadcast(code, assigned)
	}
}

func roomErrorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
