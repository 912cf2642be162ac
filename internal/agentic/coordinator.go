// Package agentic runs the bounded analyse, plan, apply and verify loop on
// the backend and relays its progress to observers.
package agentic

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/backend"
	"github.com/lucasnoah/fixfactory/internal/events"
	"github.com/lucasnoah/fixfactory/internal/state"
)

const (
	DefaultMaxAttempts = 3
	DefaultMaxActions  = 20
)

// Coordinator starts agentic runs and folds their results into state.
type Coordinator struct {
	agent    backend.Agent
	projects backend.Projects
	store    *state.Store
	log      *zap.Logger

	// RecordRetries bounds retries of the session-log append.
	RecordRetries uint64
	RecordBackoff time.Duration
}

// New creates a Coordinator. projects and log may be nil; without projects
// no session record is written.
func New(agent backend.Agent, projects backend.Projects, store *state.Store, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		agent:         agent,
		projects:      projects,
		store:         store,
		log:           log.With(zap.String("component", "agentic")),
		RecordRetries: 2,
		RecordBackoff: 200 * time.Millisecond,
	}
}

// Run performs one agentic run for goal on path. Starting a run is the
// user's confirmation, so every apply inside it is sent confirmed.
func (c *Coordinator) Run(ctx context.Context, path, goal string, cons backend.Constraints) (*backend.AgenticRunResult, error) {
	if cons.MaxAttempts <= 0 {
		cons.MaxAttempts = DefaultMaxAttempts
	}
	if cons.MaxActions <= 0 {
		cons.MaxActions = DefaultMaxActions
	}
	cons.UserConfirmed = true

	if err := c.store.Begin(state.BusyAgentic); err != nil {
		return nil, err
	}
	defer c.store.End()

	c.store.Dispatch(
		state.SetPath{Path: path},
		state.AppendMessage{Role: state.RoleUser, Text: goal},
	)

	progress, cancel := c.agent.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		var tr tracker
		for ev := range progress {
			if tr.accept(ev) {
				c.store.Bus().Publish(events.Event{Topic: events.TopicProgress, Progress: ev})
			}
		}
	}()

	res, err := c.agent.AgenticRun(ctx, backend.AgenticRequest{Path: path, Goal: goal, Constraints: cons})
	cancel()
	<-done

	if err != nil {
		c.log.Error("agentic run failed", zap.String("path", path), zap.Error(err))
		c.store.Say("Agentic run failed: %v", err)
		c.record(ctx, path, fmt.Sprintf("agentic run failed: %v", err))
		return nil, fmt.Errorf("agentic run: %w", err)
	}

	res = c.normalize(res, cons.MaxAttempts)
	summary := res.FinalSummary
	if summary == "" {
		summary = fmt.Sprintf("Agentic run finished after %d attempts.", len(res.Attempts))
	}
	c.store.Dispatch(state.SetAgenticResult{Result: res})
	if res.Succeeded() {
		c.store.Dispatch(state.SetUndoRedo{Undo: true, Redo: false})
	}
	c.store.Say("%s", summary)
	c.record(ctx, path, summary)
	return res, nil
}

// normalize enforces the attempt bound and contiguous numbering from 1.
func (c *Coordinator) normalize(res *backend.AgenticRunResult, max int) *backend.AgenticRunResult {
	if res == nil {
		return &backend.AgenticRunResult{}
	}
	out := &backend.AgenticRunResult{
		Attempts:     append([]backend.AgenticAttempt(nil), res.Attempts...),
		FinalSummary: res.FinalSummary,
	}
	if len(out.Attempts) > max {
		c.log.Warn("agentic result exceeds attempt limit, truncating",
			zap.Int("attempts", len(out.Attempts)), zap.Int("max", max))
		out.Attempts = out.Attempts[:max]
	}
	renumbered := false
	for i := range out.Attempts {
		if out.Attempts[i].Attempt != i+1 {
			out.Attempts[i].Attempt = i + 1
			renumbered = true
		}
	}
	if renumbered {
		c.log.Warn("agentic attempts were not numbered contiguously, renumbered")
	}
	return out
}

// record appends a session event for path. Failures are logged and ignored.
func (c *Coordinator) record(ctx context.Context, path, text string) {
	if c.projects == nil {
		return
	}
	backoff := retry.WithMaxRetries(c.RecordRetries, retry.NewConstant(c.RecordBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := c.projects.AddProject(ctx, path)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := c.projects.AppendSessionEvent(ctx, p.ID, "agentic", string(state.RoleAssistant), text); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.log.Warn("append session record failed", zap.String("path", path), zap.Error(err))
	}
}

// tracker filters progress events: repeats of a stage within an attempt and
// events for attempts older than the newest seen are dropped.
type tracker struct {
	latest int
	seen   map[int]map[backend.Stage]bool
}

func (t *tracker) accept(ev backend.ProgressEvent) bool {
	if ev.Attempt < t.latest {
		return false
	}
	if t.seen == nil {
		t.seen = make(map[int]map[backend.Stage]bool)
	}
	if ev.Attempt > t.latest {
		t.latest = ev.Attempt
	}
	stages := t.seen[ev.Attempt]
	if stages == nil {
		stages = make(map[backend.Stage]bool)
		t.seen[ev.Attempt] = stages
	}
	if stages[ev.Stage] {
		return false
	}
	stages[ev.Stage] = true
	return true
}
