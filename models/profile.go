package models

// DomainProfile is the persisted ladder step that worked for a domain.
type DomainProfile struct {
	ID             int64  `json:"-"`
	Domain         string `json:"domain"`
	Engine         string `json:"engine"`
	RenderJS       bool   `json:"renderJs"`
	RenderDelayMs  int    `json:"renderDelayMs"`
	UseProxy       bool   `json:"useProxy"`
	Preset         string `json:"preset,omitempty"`
	HitCount       int    `json:"hitCount"`
	LastStatusCode int    `json:"lastStatusCode"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}
