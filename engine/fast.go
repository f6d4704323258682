package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

var headerPresets = map[string]map[string]string{
	"chrome": {
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	},
}

// FastEngine is the Layer 1 engine: a single HTTP GET with a Chrome-shaped
// TLS fingerprint. It is the fastest option and accepts any status code —
// the content quality judge, not the engine, decides sufficiency.
type FastEngine struct {
	client       *http.Client
	proxyClients map[string]*http.Client
}

// NewFastEngine creates a FastEngine with a Chrome-like TLS fingerprint.
// ALPN is locked to http/1.1 to avoid the HTTP/2 framing mismatch that
// occurs when utls negotiates h2 but Go's http.Transport only speaks h1.
func NewFastEngine() *FastEngine {
	return &FastEngine{
		client:       newChromeHTTPClient(""),
		proxyClients: make(map[string]*http.Client),
	}
}

func newChromeHTTPClient(proxy string) *http.Client {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("fast: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
		Timeout: 30 * time.Second,
	}
}

func (e *FastEngine) clientFor(proxy string) *http.Client {
	if proxy == "" {
		return e.client
	}
	if c, ok := e.proxyClients[proxy]; ok {
		return c
	}
	c := newChromeHTTPClient(proxy)
	e.proxyClients[proxy] = c
	return c
}

// Name returns the engine's base identifier, "fast". The proxy-specific
// label ("fast:proxy" or "fast:direct") comes from NameFor, which Fetch
// reports as FetchResult.EngineName.
func (e *FastEngine) Name() string { return "fast" }

// NameFor returns the stable label for a given proxy configuration.
func (e *FastEngine) NameFor(proxy string) string {
	if proxy != "" {
		return "fast:proxy"
	}
	return "fast:direct"
}

func (e *FastEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	fetchCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &Error{Engine: e.NameFor(req.Proxy), Err: fmt.Errorf("build request: %w", err)}
	}

	if preset, ok := headerPresets[req.Preset]; ok {
		for k, v := range preset {
			httpReq.Header.Set(k, v)
		}
	} else {
		for k, v := range headerPresets["chrome"] {
			httpReq.Header.Set(k, v)
		}
	}
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.clientFor(req.Proxy).Do(httpReq)
	if err != nil {
		return nil, &Error{Engine: e.NameFor(req.Proxy), Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	const maxBody = 20 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Engine: e.NameFor(req.Proxy), Err: fmt.Errorf("read body: %w", err)}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	content := string(body)
	responseType := "text"
	if req.ResponseType == "base64" {
		content = base64.StdEncoding.EncodeToString(body)
		responseType = "base64"
	}

	return &FetchResult{
		StatusCode:   resp.StatusCode,
		Content:      content,
		Headers:      headers,
		FinalURL:     finalURL,
		EngineName:   e.NameFor(req.Proxy),
		ResponseType: responseType,
	}, nil
}
