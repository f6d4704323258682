package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/advanced"
	"github.com/openfetch/fetchcore/cleaner"
	"github.com/openfetch/fetchcore/models"
)

// Advanced returns the handler for POST /api/fetch/advanced. Same
// always-200/success-authoritative envelope as Fetch.
func Advanced(orch *advanced.Orchestrator, cl *cleaner.Cleaner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AdvancedFetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, models.FetchFailure{Success: false, Error: err.Error()})
			return
		}
		req.Defaults()

		result, err := orch.Run(c.Request.Context(), &req)
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
