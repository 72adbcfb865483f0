package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/stagecraft/internal/flavor"
)

// executeFlavors dispatches the executor for every selected flavor.
//
// Sequential mode awaits each flavor strictly in selection order and
// propagates the first failure unwrapped. Parallel mode issues every
// executor call before awaiting any of them, waits for all to settle,
// and aggregates every failure into one error; results come back in
// selection order.
func (o *Orchestrator) executeFlavors(ctx context.Context, flavors []*flavor.Flavor, mode ExecutionMode, runCtx Context) ([]ExecutionResult, error) {
	if mode == ModeParallel {
		return o.executeParallel(ctx, flavors, runCtx)
	}
	return o.executeSequential(ctx, flavors, runCtx)
}

func (o *Orchestrator) executeSequential(ctx context.Context, flavors []*flavor.Flavor, runCtx Context) ([]ExecutionResult, error) {
	results := make([]ExecutionResult, 0, len(flavors))
	for _, f := range flavors {
		res, err := o.executor.Execute(ctx, f, flavorContext(runCtx, f))
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (o *Orchestrator) executeParallel(ctx context.Context, flavors []*flavor.Flavor, runCtx Context) ([]ExecutionResult, error) {
	n := len(flavors)
	results := make([]*ExecutionResult, n)
	errs := make([]error, n)

	// All dispatches are issued before any join; failures are collected
	// after every call settles, never cancelled early.
	var wg sync.WaitGroup
	for i, f := range flavors {
		wg.Add(1)
		go func(i int, f *flavor.Flavor) {
			defer wg.Done()
			results[i], errs[i] = o.executor.Execute(ctx, f, flavorContext(runCtx, f))
		}(i, f)
	}
	wg.Wait()

	var failures []string
	for i, err := range errs {
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", flavors[i].Name, err))
		}
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("execute: %d/%d flavors failed: %s",
			len(failures), n, strings.Join(failures, "; "))
	}

	out := make([]ExecutionResult, n)
	for i, res := range results {
		out[i] = *res
	}
	return out, nil
}

// flavorContext derives the per-flavor run context: a flavor's own
// agent affinity overrides the run-level kataka id.
func flavorContext(runCtx Context, f *flavor.Flavor) Context {
	if f.Kataka != "" {
		runCtx.ActiveKatakaID = f.Kataka
	}
	return runCtx
}
