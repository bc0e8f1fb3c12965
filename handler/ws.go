package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lecture-avatar/dto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamStatus pushes status snapshots over a websocket until the job
// reaches a terminal state, sparing clients the polling loop.
func (h *Handler) StreamStatus(c *gin.Context) {
	id := c.Param("task_id")
	if _, ok := h.findJob(c); !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.deps.Hub.Subscribe(id)
	defer unsubscribe()

	// Re-read after subscribing so no transition falls between the
	// snapshot and the subscription.
	job, err := h.deps.Store.Get(c.Request.Context(), id)
	if err != nil {
		return
	}
	if err := writeStatus(conn, statusOf(job)); err != nil {
		return
	}
	if job.Status.Terminal() {
		return
	}

	for update := range updates {
		if err := writeStatus(conn, statusOf(update)); err != nil {
			return
		}
		if update.Status.Terminal() {
			return
		}
	}
}

func writeStatus(conn *websocket.Conn, status dto.StatusResponse) error {
	return conn.WriteJSON(status)
}
