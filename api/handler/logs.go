package handler

import (
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/logging"
)

// LogsStream returns the handler for GET /api/logs/stream: it first replays
// the buffered ring, then tails new entries as SSE events, in the writeSSE
// idiom from Easonliuliang-purify's api/handler/scrape.go handleScrapeSSE.
func LogsStream(ring *logging.Ring) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		for _, e := range ring.Snapshot() {
			writeLogSSE(c, e)
		}

		ch, unsubscribe := ring.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				writeLogSSE(c, e)
			}
		}
	}
}

func writeLogSSE(c *gin.Context, e logging.Entry) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(c.Writer, "event: log\ndata: %s\n\n", data)
	c.Writer.Flush()
}
