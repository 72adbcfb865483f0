// Package orchestrator runs the stage orchestration pipeline: it
// scores and filters candidate flavors against live context and a
// mutable rule set, decides sequential versus concurrent execution,
// dispatches the injected executor, merges flavor outputs into one
// stage artifact, and reflects on the outcome to propose new rules.
//
// Every non-deterministic judgment is captured as an immutable decision
// record through the injected decision registry. Four decisions are
// always produced per run (capability-analysis, flavor-selection,
// execution-mode, synthesis-approach); a fifth, gap-assessment, is
// attempted but its persistence failure is non-fatal.
//
// The engine performs no work itself: flavors run through the injected
// Executor, and nothing is persisted except through the injected
// registries. There is no cancellation or timeout machinery inside the
// engine; a caller that wants cancellation cancels the executor's own
// work and lets the failure propagate.
package orchestrator
