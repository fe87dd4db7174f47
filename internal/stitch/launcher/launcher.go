// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package launcher drives the aggregate dependency DAG: each round selects
// every READY aggregate whose dependencies are all RESERVED, submits that
// round's aggregates concurrently on a bounded worker pool, and applies
// their outcomes to the shared graph single-threaded once the round
// settles. This keeps the hop/aggregate graph lock-free: it is mutated
// only by the scheduler goroutine, between rounds.
package launcher

import (
	"context"
	"sort"
	"strings"
	"sync"

	"grimm.is/stitcher/internal/errors"
	"grimm.is/stitcher/internal/logging"
	"grimm.is/stitcher/internal/stitch/model"
	"grimm.is/stitcher/internal/stitch/reservation"
)

// Result is what one Run call produces.
type Result struct {
	// Success is true iff every aggregate reached RESERVED.
	Success bool
	// Escalate is true iff some aggregate exhausted its candidate VLAN
	// range and the outer loop must re-invoke the PCS.
	Escalate bool
	// LastCompleted is the last aggregate to reach RESERVED, tracked for
	// use as the combined manifest's template (§4.8).
	LastCompleted *model.Aggregate
	// Err is the first fatal error encountered, if any.
	Err error
}

// Launcher runs reservation Engine.Submit calls under the dependency DAG.
type Launcher struct {
	Engine *reservation.Engine
	Logger *logging.Logger
	// MaxConcurrent bounds the worker pool size within one round; zero
	// means unbounded (one goroutine per ready aggregate in the round).
	MaxConcurrent int
}

// NewLauncher returns a Launcher driving engine.
func NewLauncher(engine *reservation.Engine, logger *logging.Logger, maxConcurrent int) *Launcher {
	return &Launcher{Engine: engine, Logger: logger, MaxConcurrent: maxConcurrent}
}

// Run drives every aggregate in reg to a terminal state, or halts early on
// fatal error or VLAN escalation.
func (l *Launcher) Run(ctx context.Context, sliceURN string, reg *model.Registry) Result {
	var lastCompleted *model.Aggregate

	for {
		ready := readySet(reg)
		if len(ready) == 0 {
			if allReserved(reg) {
				return Result{Success: true, LastCompleted: lastCompleted}
			}
			// Nothing ready and not everything reserved: a dependency
			// deadlock, which MaterializeTransitiveClosure should already
			// have ruled out as a cycle. Treat as fatal defensively.
			return Result{Err: errDeadlock(reg)}
		}

		outcomes := l.runRound(ctx, sliceURN, ready)

		for _, oc := range outcomes {
			if oc.Aggregate.State == model.StateReserved {
				lastCompleted = oc.Aggregate
			}
		}

		if fatal := firstFatal(outcomes); fatal != nil {
			return Result{Err: fatal.Err, LastCompleted: lastCompleted}
		}
		if escalated := firstEscalation(outcomes); escalated != nil {
			return Result{Escalate: true, Err: escalated.Err, LastCompleted: lastCompleted}
		}
		// Otherwise every outcome this round was either RESERVED or READY
		// (a local VLAN retry); loop and recompute readiness.
	}
}

// runRound submits every aggregate in ready concurrently on a bounded
// worker pool and returns once all have reached a terminal-for-this-round
// state. No best-effort cancellation: once dispatched, every submission is
// awaited to completion to avoid orphaning an in-flight reservation.
func (l *Launcher) runRound(ctx context.Context, sliceURN string, ready []*model.Aggregate) []reservation.Outcome {
	sem := newSemaphore(l.MaxConcurrent, len(ready))
	results := make(chan reservation.Outcome, len(ready))

	var wg sync.WaitGroup
	for _, agg := range ready {
		agg := agg
		wg.Add(1)
		sem.acquire()
		go func() {
			defer wg.Done()
			defer sem.release()
			results <- l.Engine.Submit(ctx, sliceURN, agg)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]reservation.Outcome, 0, len(ready))
	for oc := range results {
		outcomes = append(outcomes, oc)
	}
	return outcomes
}

// readySet selects the maximal set of aggregates in state READY whose
// dependencies are all RESERVED and whose hops' imports are all satisfied,
// sorted by URN for reproducible tie-breaking.
func readySet(reg *model.Registry) []*model.Aggregate {
	var ready []*model.Aggregate
	for _, a := range reg.Aggregates() {
		if a.State != model.StateReady {
			continue
		}
		if !a.DependenciesSatisfied() || !a.ImportsSatisfied() {
			continue
		}
		ready = append(ready, a)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].URN < ready[j].URN })
	return ready
}

func allReserved(reg *model.Registry) bool {
	for _, a := range reg.Aggregates() {
		if !a.Reserved() {
			return false
		}
	}
	return true
}

func firstFatal(outcomes []reservation.Outcome) *reservation.Outcome {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Aggregate.URN < outcomes[j].Aggregate.URN })
	for i := range outcomes {
		if outcomes[i].Aggregate.State == model.StateFatal {
			return &outcomes[i]
		}
	}
	return nil
}

func firstEscalation(outcomes []reservation.Outcome) *reservation.Outcome {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Aggregate.URN < outcomes[j].Aggregate.URN })
	for i := range outcomes {
		if outcomes[i].Escalate {
			return &outcomes[i]
		}
	}
	return nil
}

// semaphore bounds concurrency within one round via a buffered channel.
type semaphore chan struct{}

func newSemaphore(maxConcurrent, roundSize int) semaphore {
	n := maxConcurrent
	if n <= 0 || n > roundSize {
		n = roundSize
	}
	if n <= 0 {
		n = 1
	}
	return make(semaphore, n)
}

func (s semaphore) acquire() { s <- struct{}{} }
func (s semaphore) release() { <-s }

// errDeadlock reports the aggregates left unsatisfiable when a round ends
// with nothing ready and nothing left to reserve.
func errDeadlock(reg *model.Registry) error {
	var stuck []string
	for _, a := range reg.Aggregates() {
		if !a.Reserved() {
			stuck = append(stuck, a.URN)
		}
	}
	sort.Strings(stuck)
	return errors.Errorf(errors.KindDependencyCycle, "no aggregate ready and not all reserved: stuck on %s", strings.Join(stuck, ", "))
}
