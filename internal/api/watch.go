package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	// The API already answers every origin, see cors.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Watch streams the full ordered result set of a collection over a websocket, one
// JSON array per change.
func (h *Handler) Watch(c *gin.Context) {
	q, err := queryFrom(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	feed, err := h.Store.Subscribe(c.Request.Context(), q)
	if err != nil {
		c.JSON(storeStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer feed.Cancel()

	wc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer wc.Close()

	// Incoming messages are ignored; a read error means the client left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := wc.NextReader(); err != nil {
				return
			}
		}
	}()

	t := time.NewTicker(pingInterval)
	defer t.Stop()

	h.Logger.Debug("watch attached", "query", q.String(), "remote", c.Request.RemoteAddr)
	for {
		select {
		case snap, ok := <-feed.Snapshots():
			if !ok {
				reason := "feed closed"
				if err := feed.Err(); err != nil {
					reason = err.Error()
				}
				wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
				return
			}
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(snap); err != nil {
				return // ignore error, client disconnected
			}
		case <-t.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-gone:
			h.Logger.Debug("watch detached", "query", q.String())
			return
		}
	}
}
