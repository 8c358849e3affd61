package actions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/deckd/internal/config"
	"github.com/dokzlo13/deckd/internal/ledger"
)

// Runner executes a single action
type Runner interface {
	Execute(ctx context.Context, action config.Action) error
}

// Invoker runs actions under an invocation id and records them in the ledger
type Invoker struct {
	runner Runner
	ledger *ledger.Ledger // nil disables recording
}

// NewInvoker creates a new action invoker. l may be nil.
func NewInvoker(runner Runner, l *ledger.Ledger) *Invoker {
	return &Invoker{
		runner: runner,
		ledger: l,
	}
}

// Invoke executes the action bound to key on page and returns its error.
func (i *Invoker) Invoke(ctx context.Context, page string, key int, action config.Action) error {
	id := uuid.NewString()
	kind := string(action.Kind())

	i.appendLedger(ledger.Entry{
		EventType:    ledger.EventActionStarted,
		InvocationID: id,
		Page:         page,
		Key:          key,
		ActionKind:   kind,
		Payload:      describe(action),
	})

	start := time.Now()
	err := i.runner.Execute(ctx, action)
	elapsed := time.Since(start)

	if err != nil {
		i.appendLedger(ledger.Entry{
			EventType:    ledger.EventActionFailed,
			InvocationID: id,
			Page:         page,
			Key:          key,
			ActionKind:   kind,
			Payload:      map[string]any{"error": err.Error(), "duration_ms": elapsed.Milliseconds()},
		})
		return err
	}

	i.appendLedger(ledger.Entry{
		EventType:    ledger.EventActionCompleted,
		InvocationID: id,
		Page:         page,
		Key:          key,
		ActionKind:   kind,
		Payload:      map[string]any{"duration_ms": elapsed.Milliseconds()},
	})
	log.Debug().
		Str("invocation_id", id).
		Str("action", kind).
		Int("key", key).
		Dur("duration", elapsed).
		Msg("Action completed")
	return nil
}

func (i *Invoker) appendLedger(e ledger.Entry) {
	if i.ledger == nil {
		return
	}
	if err := i.ledger.Append(e); err != nil {
		log.Error().Err(err).Str("invocation_id", e.InvocationID).Msg("Failed to record action in ledger")
	}
}

// describe returns ledger payload fields for an action. Headers and bodies
// are left out since they may carry credentials.
func describe(action config.Action) map[string]any {
	switch a := action.(type) {
	case config.HTTPAction:
		return map[string]any{"method": a.Method, "url": a.URL}
	case config.ShellAction:
		return map[string]any{"command": a.Command}
	case config.NavigateAction:
		return map[string]any{"page": a.Page}
	default:
		return nil
	}
}
