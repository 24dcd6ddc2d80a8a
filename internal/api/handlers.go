package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dsatutor/internal/models"
	"dsatutor/internal/store"
	"dsatutor/internal/worker"
)

// WelcomePrompts are offered on an empty chat.
var WelcomePrompts = []string{
	"Explain Big O notation with an example",
	"How does a hash map work?",
	"Write python code to implement a binary search tree",
	"What are the pros and cons of linked lists vs arrays?",
}

// resyncInterval bounds how long an event stream can miss a dropped notification.
const resyncInterval = time.Second

// Submitter schedules a response for a user message. worker.Manager implements it.
type Submitter interface {
	Submit(sessionID, text string) (store.Submission, error)
}

// Handler wires HTTP routes to the session store and the response workers.
type Handler struct {
	store   *store.Store
	workers Submitter
}

// NewHandler constructs a Handler instance.
func NewHandler(st *store.Store, workers Submitter) *Handler {
	return &Handler{store: st, workers: workers}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.GET("/prompts", h.listPrompts)
	api.GET("/sessions", h.listSessions)
	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id", h.getSession)
	api.POST("/sessions/:id/select", h.selectSession)
	api.POST("/sessions/:id/messages", h.postMessage)
	api.GET("/sessions/:id/events", h.streamEvents)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prompts": WelcomePrompts})
}

func (h *Handler) listSessions(c *gin.Context) {
	snap := h.store.Snapshot()
	var active any
	if snap.ActiveID != "" {
		active = snap.ActiveID
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": snap.Sessions,
		"activeId": active,
	})
}

func (h *Handler) createSession(c *gin.Context) {
	id := h.store.CreateSession()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.store.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) selectSession(c *gin.Context) {
	if err := h.store.SelectSession(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type messageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := c.Param("id")
	if _, err := h.workers.Submit(id, req.Content); err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.store.Session(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess)
}

// streamEvents pushes the session after every change until it is idle.
func (h *Handler) streamEvents(c *gin.Context) {
	id := c.Param("id")

	// subscribe before the first read so no change slips in between
	events, cancel := h.store.Subscribe()
	defer cancel()

	sess, err := h.store.Session(id)
	if err != nil {
		writeError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("session", sess); err != nil {
		return
	}
	if !sess.IsLoading {
		_ = sendEvent("done", sess)
		return
	}

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()
	last := sess
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.SessionID != id {
				continue
			}
		case <-ticker.C:
		}

		sess, err := h.store.Session(id)
		if err != nil {
			_ = sendEvent("error", gin.H{"message": err.Error()})
			return
		}
		if sessionChanged(last, sess) {
			if err := sendEvent("session", sess); err != nil {
				return
			}
			last = sess
		}
		if !sess.IsLoading {
			_ = sendEvent("done", sess)
			return
		}
	}
}

func sessionChanged(a, b models.ChatSession) bool {
	if a.LastUpdated != b.LastUpdated || a.IsLoading != b.IsLoading || a.Title != b.Title || len(a.Messages) != len(b.Messages) {
		return true
	}
	if n := len(a.Messages); n > 0 {
		return a.Messages[n-1].Content != b.Messages[n-1].Content
	}
	return false
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, store.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrSessionBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
	case errors.Is(err, worker.ErrDispatcherClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
