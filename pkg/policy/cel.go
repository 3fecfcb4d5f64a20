package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEvaluator compiles and caches CEL programs for custom policy rules
// of the kind a hot-reloaded Bundle carries (bundle.go), the same
// double-checked-locking cache and cost/interrupt limits as the reference
// codebase's CELPolicyEvaluator.
type celEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

func newCELEvaluator() (*celEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("intent", cel.DynType),
		cel.Variable("timestamp", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel: environment: %w", err)
	}
	return &celEvaluator{env: env, prgCache: make(map[string]cel.Program)}, nil
}

// EvaluateBool compiles (once, cached) and runs a boolean CEL rule against
// input. Rules are custom, per-bundle policy expressions in addition to
// the Comparator's structural checks — for example a cross-field
// constraint like `intent.constraints.max_budget <= intent.constraints.max_results * 50`.
func (e *celEvaluator) EvaluateBool(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.prgCache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("cel: compile %q: %w", expr, issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("cel: program %q: %w", expr, err)
			}
			e.prgCache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("cel: eval %q: %w", expr, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel: expression %q did not evaluate to bool", expr)
	}
	return val, nil
}
