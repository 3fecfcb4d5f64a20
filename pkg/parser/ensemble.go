package parser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentryforge/gateway/pkg/schema"
)

// Config tunes the ensemble's fan-out.
type Config struct {
	PerCallTimeout time.Duration
	MaxParallel    int
}

// DefaultConfig matches §5's default parser per-call timeout.
func DefaultConfig() Config {
	return Config{PerCallTimeout: 30 * time.Second, MaxParallel: 8}
}

// Ensemble runs M independent parsers in parallel over one input.
type Ensemble struct {
	parsers []*Parser
	config  Config
	logger  *slog.Logger
}

// New builds an Ensemble. logger defaults to slog.Default if nil.
func New(parsers []*Parser, config Config, logger *slog.Logger) *Ensemble {
	if config.MaxParallel <= 0 {
		config.MaxParallel = len(parsers)
		if config.MaxParallel == 0 {
			config.MaxParallel = 1
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ensemble{parsers: parsers, config: config, logger: logger.With("component", "parser_ensemble")}
}

type parseOutcome struct {
	index  int
	result schema.ParsedIntent
	err    error
}

// Run fans out to every parser and returns only the successful results, in
// no particular order (the voting step is order-insensitive per §5). A
// per-parser failure is logged, not propagated; the caller decides whether
// zero successes is a hard error (§4.5: "unless all parsers fail, in which
// case the request aborts").
func (e *Ensemble) Run(ctx context.Context, input string) []schema.ParsedIntent {
	results := make(chan parseOutcome, len(e.parsers))
	sem := make(chan struct{}, e.config.MaxParallel)
	var wg sync.WaitGroup

	for i, p := range e.parsers {
		wg.Add(1)
		go func(i int, p *Parser) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pctx, cancel := context.WithTimeout(ctx, e.config.PerCallTimeout)
			defer cancel()

			parsed, err := p.Parse(pctx, input)
			results <- parseOutcome{index: i, result: parsed, err: err}
		}(i, p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	successes := make([]schema.ParsedIntent, 0, len(e.parsers))
	for r := range results {
		if r.err != nil {
			e.logger.Warn("parser failed", "parser_index", r.index, "error", r.err)
			continue
		}
		successes = append(successes, r.result)
	}
	return successes
}
