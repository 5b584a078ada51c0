package health

import (
	"context"
	"time"
)

type Probe func(ctx context.Context) error

type ProbeResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ProbeRunner evaluates readiness dependencies with a short per-probe budget.
type ProbeRunner struct {
	probes  map[string]Probe
	timeout time.Duration
}

func NewProbeRunner(timeout time.Duration) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{probes: make(map[string]Probe), timeout: timeout}
}

func (p *ProbeRunner) Register(name string, probe Probe) {
	p.probes[name] = probe
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []ProbeResult) {
	ready := true
	results := make([]ProbeResult, 0, len(p.probes))
	for name, probe := range p.probes {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := probe(probeCtx)
		cancel()
		result := ProbeResult{Name: name, Healthy: err == nil}
		if err != nil {
			result.Error = err.Error()
			ready = false
		}
		results = append(results, result)
	}
	return ready, results
}
