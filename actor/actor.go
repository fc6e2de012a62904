// Package actor is the single logical actor that owns the agent's state
// exclusively. Run fires one cycle immediately and then on every ticker
// fire, catching and logging any error without stopping the loop; every
// mutation, including admin routes, is serialized behind one mutex.
package actor

import (
	"context"
	"sync"
	"time"

	"meridian/broker"
	"meridian/config"
	"meridian/crisis"
	"meridian/dex"
	"meridian/domain"
	"meridian/equity"
	"meridian/llm"
	"meridian/logger"
	"meridian/notify"
	"meridian/signals"
	"meridian/store"
)

// Actor serializes every tick and every admin mutation behind mu. No
// goroutine but the one running Tick ever touches state directly.
type Actor struct {
	mu    sync.Mutex
	state *domain.AgentState
	store *store.Store

	br broker.Broker

	crisisMonitor *crisis.Monitor
	dexEngine     *dex.Engine
	equityTrader  *equity.Trader
	researcher    *llm.Researcher
	gatherer      *signals.Gatherer
	validator     *signals.Validator
	twitter       *signals.TwitterChecker
	notifier      notify.Notifier

	stop chan struct{}
}

// New builds an Actor over an already-loaded state. Every collaborator is
// constructed by the caller (cmd/agent) so tests can substitute fakes.
func New(
	state *domain.AgentState,
	st *store.Store,
	br broker.Broker,
	crisisMonitor *crisis.Monitor,
	dexEngine *dex.Engine,
	equityTrader *equity.Trader,
	researcher *llm.Researcher,
	gatherer *signals.Gatherer,
	validator *signals.Validator,
	twitter *signals.TwitterChecker,
	notifier notify.Notifier,
) *Actor {
	return &Actor{
		state:         state,
		store:         st,
		br:            br,
		crisisMonitor: crisisMonitor,
		dexEngine:     dexEngine,
		equityTrader:  equityTrader,
		researcher:    researcher,
		gatherer:      gatherer,
		validator:     validator,
		twitter:       twitter,
		notifier:      notifier,
		stop:          make(chan struct{}),
	}
}

// Run starts the tick loop at the configured cadence, running one tick
// immediately and then on every subsequent fire, until ctx is canceled or
// Stop is called.
func (a *Actor) Run(ctx context.Context) {
	interval := a.withStateLocked(func(s *domain.AgentState) time.Duration { return s.Config.TickInterval() })

	a.runTickLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			newInterval := a.withStateLocked(func(s *domain.AgentState) time.Duration { return s.Config.TickInterval() })
			if newInterval != interval {
				ticker.Reset(newInterval)
				interval = newInterval
			}
			a.runTickLogged(ctx)
		}
	}
}

// Stop ends the Run loop; it does not touch persisted state.
func (a *Actor) Stop() {
	close(a.stop)
}

func (a *Actor) runTickLogged(ctx context.Context) {
	if err := a.Trigger(ctx); err != nil {
		logger.Errorf("[Actor] tick failed: %v", err)
	}
}

// Trigger runs one tick synchronously under the actor's lock — the same
// path both the scheduler and the admin /trigger route use.
func (a *Actor) Trigger(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tick(ctx, time.Now())
}

// WithState runs fn with the actor's state locked, for admin read paths
// that must observe a consistent snapshot without racing a tick.
func (a *Actor) WithState(fn func(*domain.AgentState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.state)
}

func (a *Actor) withStateLocked(fn func(*domain.AgentState) time.Duration) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.state)
}

// Mutate runs fn with the actor's state locked and persists the result
// immediately, for admin routes that change config/enablement outside a
// tick (enable/disable/config/kill/crisis-toggle/dex-reset).
func (a *Actor) Mutate(fn func(*domain.AgentState)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.state)
	return a.persist(time.Time{})
}

// ReconfigureLLM swaps the researcher's client/tunables under the actor's
// lock, for the admin /config route's "persist + reinitialize LLM" step.
func (a *Actor) ReconfigureLLM(client *llm.Client, cfg config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.researcher.Reconfigure(client, cfg)
}

func (a *Actor) persist(nextTick time.Time) error {
	if nextTick.IsZero() {
		if a.state.Enabled {
			nextTick = time.Now().Add(a.state.Config.TickInterval())
		}
	}
	if err := a.store.Save(a.state, nextTick); err != nil {
		return err
	}
	if !a.state.Enabled {
		return a.store.ClearAlarm()
	}
	return nil
}
