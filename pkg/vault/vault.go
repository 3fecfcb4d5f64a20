// Package vault runs the penitent sentry ensemble over raw request input
// and reconciles their verdicts into a single suspect/clean consensus.
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/sentryforge/gateway/pkg/health"
	"github.com/sentryforge/gateway/pkg/schema"
)

// Config tunes the Vault. Zero value is invalid; use DefaultConfig.
type Config struct {
	ConsensusMode      ConsensusMode
	SuspicionThreshold float64
	PerSentryTimeout   time.Duration
	MaxParallel        int
}

// DefaultConfig matches §4.3/§5 defaults.
func DefaultConfig() Config {
	return Config{
		ConsensusMode:      ConsensusAnySuspicious,
		SuspicionThreshold: 0.5,
		PerSentryTimeout:   10 * time.Second,
		MaxParallel:        8,
	}
}

// Vault is the ensemble of sentries plus the consensus rule over their
// verdicts.
type Vault struct {
	sentries []*Sentry
	monitor  *health.Monitor
	config   Config
}

// New builds a Vault over sentries, gated by monitor's quarantine state.
func New(sentries []*Sentry, monitor *health.Monitor, config Config) *Vault {
	if config.MaxParallel <= 0 {
		config.MaxParallel = len(sentries)
		if config.MaxParallel == 0 {
			config.MaxParallel = 1
		}
	}
	return &Vault{sentries: sentries, monitor: monitor, config: config}
}

type sentryResult struct {
	index   int
	verdict schema.SentryVerdict
}

// Verify runs every non-quarantined sentry on input in parallel and
// returns the consensus verdict. If every sentry is quarantined, Verify
// fails closed without invoking any sentry (§4.4, property 10): the
// returned verdict has ConsensusSuspect=true and an empty
// PerSentryVerdicts.
func (v *Vault) Verify(ctx context.Context, input string) schema.VaultVerdict {
	var active []*Sentry
	var ids []string
	for _, s := range v.sentries {
		ids = append(ids, s.ID)
		if !v.monitor.IsQuarantined(s.ID) {
			active = append(active, s)
		}
	}

	if v.monitor.AllQuarantined(ids) || len(active) == 0 {
		return schema.VaultVerdict{ConsensusSuspect: true, AvgScore: 1.0}
	}

	// Fan out: buffered results channel, semaphore-bounded goroutines, a
	// WaitGroup closed by its own goroutine so the main loop can drain the
	// channel in a plain range regardless of completion order, the same
	// shape as a multi-subtask policy evaluation batch.
	results := make(chan sentryResult, len(active))
	sem := make(chan struct{}, v.config.MaxParallel)
	var wg sync.WaitGroup

	for i, s := range active {
		wg.Add(1)
		go func(i int, s *Sentry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sctx, cancel := context.WithTimeout(ctx, v.config.PerSentryTimeout)
			defer cancel()

			results <- sentryResult{index: i, verdict: s.Verify(sctx, input)}
		}(i, s)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	verdicts := make([]schema.SentryVerdict, len(active))
	for r := range results {
		verdicts[r.index] = r.verdict
	}

	weight := func(sentryID string) float64 { return v.monitor.Weight(sentryID) }
	suspect := evaluateConsensus(v.config.ConsensusMode, verdicts, v.config.SuspicionThreshold, weight)

	return schema.VaultVerdict{
		PerSentryVerdicts: verdicts,
		ConsensusSuspect:  suspect,
		AvgScore:          avgScore(verdicts),
	}
}
