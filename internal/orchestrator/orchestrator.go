// Package orchestrator implements the Auto-Start Orchestrator (spec
// §4.9): on process startup, topologically sort backends by dependsOn
// and bring up everything marked autoStart in dependency order, then
// bring up autoStart proxies whose backend reached Verified.
//
// mcp_dock's Python original has no dependency ordering at all; every
// auto-start server is simply started in map-iteration order, so this
// component has no direct grounding file; it's a genuine addition the
// distilled spec calls for (spec §4.9) that the original never needed
// because it never modeled inter-backend dependencies.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/proxyengine"
)

// Report summarizes one orchestration pass (spec §4.9 step 4: "reports
// aggregate counts; failures do not block the remaining startups").
type Report struct {
	BackendsStarted int
	BackendsFailed  int
	ProxiesStarted  int
	ProxiesSkipped  int
}

// TopoSort orders names by Kahn's algorithm over each backend's
// DependsOn edges, returning an error if a cycle is detected.
func TopoSort(backends []config.BackendConfig) ([]string, error) {
	byName := make(map[string]config.BackendConfig, len(backends))
	indegree := make(map[string]int, len(backends))
	dependents := make(map[string][]string)

	for _, b := range backends {
		byName[b.Name] = b
		if _, ok := indegree[b.Name]; !ok {
			indegree[b.Name] = 0
		}
	}
	for _, b := range backends {
		for _, dep := range b.DependsOn {
			if _, ok := byName[dep]; !ok {
				continue // dangling dependency: ignored rather than fatal
			}
			indegree[b.Name]++
			dependents[dep] = append(dependents[dep], b.Name)
		}
	}

	var queue []string
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dependent := range dependents[n] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(byName) {
		return nil, mcperrors.Config("toposort", "dependency cycle detected among backends")
	}
	return order, nil
}

// Run performs the full spec §4.9 startup sequence.
func Run(ctx context.Context, registry *backend.Registry, store config.ConfigStore, proxies map[string]*proxyengine.Proxy, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report Report

	backendCfgs, err := store.ListBackends()
	if err != nil {
		return report, fmt.Errorf("orchestrator: list backends: %w", err)
	}

	order, err := TopoSort(backendCfgs)
	if err != nil {
		return report, err
	}

	byName := make(map[string]config.BackendConfig, len(backendCfgs))
	for _, b := range backendCfgs {
		byName[b.Name] = b
	}

	for _, name := range order {
		cfg := byName[name]
		if !cfg.AutoStart {
			continue
		}
		startCtx, cancel := context.WithTimeout(ctx, 35*time.Second)
		err := registry.Start(startCtx, name)
		cancel()
		if err != nil {
			report.BackendsFailed++
			logger.Warn("auto-start backend failed", "backend", name, "error", err)
			continue
		}
		report.BackendsStarted++
	}

	proxyCfgs, err := store.ListProxies()
	if err != nil {
		return report, fmt.Errorf("orchestrator: list proxies: %w", err)
	}
	for _, pc := range proxyCfgs {
		if !pc.AutoStart {
			continue
		}
		b, ok := registry.Get(pc.BackendName)
		if !ok || b.State() != backend.StateVerified {
			report.ProxiesSkipped++
			continue
		}
		p, ok := proxies[pc.Name]
		if !ok {
			report.ProxiesSkipped++
			continue
		}
		p.RefreshEffectiveTools(b)
		p.SetState(proxyengine.StateRunning, nil)
		report.ProxiesStarted++
	}

	logger.Info("auto-start complete",
		"backends_started", report.BackendsStarted,
		"backends_failed", report.BackendsFailed,
		"proxies_started", report.ProxiesStarted,
		"proxies_skipped", report.ProxiesSkipped,
	)
	return report, nil
}
