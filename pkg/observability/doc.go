// Package observability wires OpenTelemetry tracing and metrics for the
// gateway pipeline.
//
// Initialize once at startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Wrap a pipeline stage:
//
//	ctx, end := p.TrackOperation(ctx, "vault.verify")
//	verdict := v.Verify(ctx, userInput)
//	end(nil)
package observability
