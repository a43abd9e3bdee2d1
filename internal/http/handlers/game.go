package handlers

import (
	"net/http"
	"strings"

	"number_merge_game/internal/service"

	"github.com/gin-gonic/gin"
)

type JoinRequest struct {
	Wager int64 `json:"wager"`
}

type StartRequest struct {
	GridSize int `json:"grid_size"`
}

type MoveRequest struct {
	Directions string `json:"directions"`
}

type ReplyRequest struct {
	Text string `json:"text"`
}

type DecisionRequest struct {
	Choice string `json:"choice"`
}

// bindOptional decodes a JSON body if one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return false
	}
	return true
}

// guildParam returns the :guild path parameter, refusing private chat
// sessions that belong to someone else.
func guildParam(c *gin.Context, id service.Identity) (string, bool) {
	guild := c.Param("guild")
	if !service.CanActIn(guild, id.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return "", false
	}
	return guild, true
}

func (h *Handler) respond(c *gin.Context, out *service.Outcome, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Join seats the caller, optionally with a wager
func (h *Handler) Join(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	var req JoinRequest
	if !bindOptional(c, &req) {
		return
	}
	out, err := h.Sessions.Join(c.Request.Context(), guild, id.UserID, id.Name, req.Wager)
	h.respond(c, out, err)
}

func (h *Handler) Leave(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	out, err := h.Sessions.Leave(c.Request.Context(), guild, id.UserID)
	h.respond(c, out, err)
}

func (h *Handler) Start(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	var req StartRequest
	if !bindOptional(c, &req) {
		return
	}
	out, err := h.Sessions.Start(c.Request.Context(), guild, id.UserID, req.GridSize)
	h.respond(c, out, err)
}

func (h *Handler) Reset(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	out, err := h.Sessions.Reset(c.Request.Context(), guild, id.UserID)
	h.respond(c, out, err)
}

// Move applies directions; an empty body opens a move prompt
func (h *Handler) Move(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	var req MoveRequest
	if !bindOptional(c, &req) {
		return
	}
	out, err := h.Sessions.Move(c.Request.Context(), guild, id.UserID, req.Directions)
	h.respond(c, out, err)
}

func (h *Handler) Reply(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	out, err := h.Sessions.Reply(c.Request.Context(), guild, id.UserID, req.Text)
	h.respond(c, out, err)
}

func (h *Handler) Decision(c *gin.Context) {
	id, ok := getIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	guild, ok := guildParam(c, id)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	out, err := h.Sessions.Decide(c.Request.Context(), guild, id.UserID, req.Choice)
	h.respond(c, out, err)
}

// State is public: anyone may look at a group's board.
func (h *Handler) State(c *gin.Context) {
	sess, render, err := h.Sessions.State(c.Request.Context(), c.Param("guild"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "render": render})
}

func (h *Handler) Best(c *gin.Context) {
	across := strings.EqualFold(c.Query("across"), "true") || c.Query("across") == "1"
	best, err := h.Sessions.BestRecord(c.Request.Context(), c.Param("guild"), across)
	if err != nil {
		respondError(c, err)
		return
	}
	if best == nil {
		c.JSON(http.StatusOK, gin.H{"best": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"best": best})
}
