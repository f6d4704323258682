package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/cleaner"
	"github.com/openfetch/fetchcore/escalate"
	"github.com/openfetch/fetchcore/models"
)

// Fetch returns the handler for POST /api/fetch. Per spec §6 the HTTP
// status is always 200; the success field in the body is authoritative.
func Fetch(sched *escalate.Scheduler, cl *cleaner.Cleaner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, models.FetchFailure{Success: false, Error: err.Error()})
			return
		}
		req.Defaults()

		result, err := sched.Fetch(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, models.FetchFailure{Success: false, Error: errMessage(err)})
			return
		}

		if req.ResponseType != "base64" {
			content, markdown, err := cl.Render(result.Content, result.URL, req.Format)
			if err != nil {
				c.JSON(http.StatusOK, models.FetchFailure{Success: false, Error: err.Error()})
				return
			}
			result.Content = content
			result.Markdown = markdown
		}

		c.JSON(http.StatusOK, result)
	}
}

// errMessage unwraps a *models.FetchError to its one-line message, or falls
// back to err.Error() for anything else — user-visible failures must never
// carry a stack trace.
func errMessage(err error) string {
	if fe, ok := err.(*models.FetchError); ok {
		return fe.Message
	}
	return err.Error()
}
