package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/pool"
)

// Status returns the handler for GET /api/status. Unlike the fetch
// endpoints, admin-surface handlers use real HTTP status codes (§5.7).
func Status(p *pool.BrowserPool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		slotStatuses := make([]models.SlotStatus, 0)
		connected := false
		totalActive := 0
		var totalUsed int64

		if p != nil {
			slots, active, used := p.Status()
			totalActive, totalUsed = active, used
			for _, s := range slots {
				slotStatuses = append(slotStatuses, models.SlotStatus{
					ID:         s.ID,
					Connected:  s.Connected,
					ActiveTabs: s.ActiveTabs,
					TabsUsed:   s.TabsUsed,
					Stale:      s.Stale,
				})
				if s.Connected {
					connected = true
				}
			}
		}

		status := "healthy"
		if !connected {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.StatusResponse{
			Status:           status,
			ActiveRequests:   totalActive,
			BrowserConnected: connected,
			BrowserPool: models.PoolStatus{
				Slots:           slotStatuses,
				TotalActiveTabs: totalActive,
				TotalTabsUsed:   totalUsed,
			},
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		})
	}
}
