package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/models"
	"github.com/openfetch/fetchcore/profile"
)

// ListProfiles returns the handler for GET /api/domain-profiles.
func ListProfiles(store *profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		profiles, err := store.All()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"profiles": profiles})
	}
}

// GetProfile returns the handler for GET /api/domain-profiles/:domain.
func GetProfile(store *profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Param("domain")
		p, err := store.Get(domain)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no profile for domain " + domain})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// DeleteProfile returns the handler for DELETE /api/domain-profiles/:domain.
// Evicting a stale profile is how an operator forces re-escalation for a
// domain whose cached step has started failing (escalate.Scheduler.runCached
// surfaces cached-profile failures rather than silently re-escalating).
func DeleteProfile(store *profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Param("domain")
		if err := store.Delete(domain); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// UpsertProfile returns the handler for POST /api/domain-profiles, letting
// an operator pre-seed or override a domain's escalation step. The body
// names its own domain rather than taking one from the path.
func UpsertProfile(store *profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p models.DomainProfile
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if p.Domain == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "domain is required"})
			return
		}
		if err := store.Upsert(p.Domain, p); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
