package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/config"
)

// GetConfig returns the handler for GET /api/config.
func GetConfig(store *config.RuntimeStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Get())
	}
}

// PostConfig returns the handler for POST /api/config. The new snapshot is
// atomically swapped in and persisted to <dataDir>/settings.json so it
// survives a restart.
func PostConfig(store *config.RuntimeStore, dataDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg config.RuntimeConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		store.Set(cfg)

		if err := persistSettings(dataDir, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "config applied but not persisted: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, cfg)
	}
}

func persistSettings(dataDir string, cfg config.RuntimeConfig) error {
	if dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, "settings.json"), data, 0o644)
}

// LoadPersistedSettings reads a previously persisted settings.json, if any.
// A missing file is not an error — the caller falls back to env defaults.
func LoadPersistedSettings(dataDir string) (*config.RuntimeConfig, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "settings.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cfg config.RuntimeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
