package models

// FetchRequest is the payload for POST /api/fetch.
type FetchRequest struct {
	// URL is the target page to fetch. Required, must be absolute HTTP/HTTPS.
	URL string `json:"url" binding:"required,url"`

	// Engine selects the fetch strategy: auto, fast, browser, stealth.
	// Default: auto.
	Engine string `json:"engine,omitempty" binding:"omitempty,oneof=auto fast browser stealth"`

	// RenderJS hints that the page needs JavaScript execution to render.
	RenderJS bool `json:"renderJs,omitempty"`

	// WaitForJS hints the stealth engine to wait for full load instead of
	// just DOM content.
	WaitForJS bool `json:"waitForJs,omitempty"`

	// RenderDelayMs is extra time to wait after load completes, in milliseconds.
	RenderDelayMs int `json:"renderDelayMs,omitempty" binding:"omitempty,min=0"`

	// Proxy overrides the service default proxy for this request.
	Proxy string `json:"proxy,omitempty"`

	// Headers are merged on top of the preset bundle (if any).
	Headers map[string]string `json:"headers,omitempty"`

	// Preset names a header bundle (e.g. "chrome").
	Preset string `json:"preset,omitempty"`

	// Format controls the shape of Content: html, html-stripped, markdown.
	Format string `json:"format,omitempty" binding:"omitempty,oneof=html html-stripped markdown"`

	// ResponseType controls text vs base64 encoding of Content.
	// base64 forces the fast engine regardless of Engine/cached profile.
	ResponseType string `json:"responseType,omitempty" binding:"omitempty,oneof=text base64"`
}

// Defaults fills unset fields with their documented defaults.
func (r *FetchRequest) Defaults() {
	if r.Engine == "" {
		r.Engine = "auto"
	}
	if r.Format == "" {
		r.Format = "html"
	}
	if r.ResponseType == "" {
		r.ResponseType = "text"
	}
}

// UploadConfig describes the sink that downloaded resources are forwarded to.
type UploadConfig struct {
	BaseURL string `json:"baseUrl" binding:"required,url"`
	APIKey  string `json:"apiKey" binding:"required"`
	Bucket  string `json:"bucket" binding:"required"`
}

// AdvancedFetchRequest extends FetchRequest with network-capture, binary
// download and upload fan-out options for POST /api/fetch/advanced.
type AdvancedFetchRequest struct {
	FetchRequest

	// JSAction is a script string evaluated after the main navigation.
	JSAction string `json:"jsAction,omitempty"`

	// APIPatterns is an ordered list of regex patterns matched against
	// captured response URLs.
	APIPatterns []string `json:"apiPatterns,omitempty"`

	// ImagesToDownload is a list of binary resource URLs to fetch through
	// the live browser context.
	ImagesToDownload []string `json:"imagesToDownload,omitempty"`

	// UploadConfig optionally forwards each downloaded resource to a sink.
	UploadConfig *UploadConfig `json:"uploadConfig,omitempty"`
}
