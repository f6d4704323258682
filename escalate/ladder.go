package escalate

// Step is one rung of the escalation ladder: a concrete (engine, proxy,
// render-delay) configuration to try.
type Step struct {
	Engine        string // "fast" | "browser" | "stealth" | "unblock"
	UseProxy      bool
	RenderDelayMs int
	Label         string
}

// Config carries the service-wide settings that shape which ladder steps
// apply to a given miss.
type Config struct {
	ProxyConfigured  bool
	RemoteConfigured bool
}

// Ladder builds the ordered list of steps for a cache miss, per the fixed
// six-step table: fast+proxy (if a proxy is configured), fast direct,
// remote browser at 2s (if the remote endpoint is configured), local
// stealth at 3s, local stealth at 5s (if remote configured), unblock (if
// remote configured).
func Ladder(cfg Config) []Step {
	steps := make([]Step, 0, 6)

	if cfg.ProxyConfigured {
		steps = append(steps, Step{Engine: "fast", UseProxy: true, RenderDelayMs: 0, Label: "fast:proxy"})
	}
	steps = append(steps, Step{Engine: "fast", UseProxy: false, RenderDelayMs: 0, Label: "fast:direct"})

	if cfg.RemoteConfigured {
		steps = append(steps, Step{Engine: "browser", UseProxy: false, RenderDelayMs: 2000, Label: "browser"})
	}

	steps = append(steps, Step{Engine: "stealth", UseProxy: false, RenderDelayMs: 3000, Label: "stealth:3s"})

	if cfg.RemoteConfigured {
		steps = append(steps, Step{Engine: "stealth", UseProxy: false, RenderDelayMs: 5000, Label: "stealth:5s"})
		steps = append(steps, Step{Engine: "unblock", UseProxy: false, RenderDelayMs: 0, Label: "unblock"})
	}

	return steps
}

// isDefaultStartingStep reports whether step is the implicit default the
// ladder always begins from — (fast, useProxy=true, delay=0) — which is
// never worth persisting since every domain starts there anyway.
func isDefaultStartingStep(s Step) bool {
	return s.Engine == "fast" && s.UseProxy && s.RenderDelayMs == 0
}
