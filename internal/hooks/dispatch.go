package hooks

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/logging"
	"github.com/edgeshim/edgeshim/internal/observability"
	"github.com/edgeshim/edgeshim/internal/txn"
)

// Spec selects one registered plugin and its settings. Dispatch order
// follows spec order.
type Spec struct {
	Key      string
	Settings map[string]any
}

type registration struct {
	key    string
	plugin Plugin
}

// Result is what one stage firing hands back to the engine.
type Result struct {
	// Outcome aggregates the chain: Resume when every plugin resumed, else
	// the first Error/Stop decision.
	Outcome txn.Outcome
	// ErrorStatus is the plugin-requested status for OutcomeError, 0 for
	// engine default.
	ErrorStatus int
	// DecidedBy names the plugin that ended the chain early, "" otherwise.
	DecidedBy string
}

// Dispatcher routes stage firings to the plugins subscribed to each stage,
// in registration order. It owns the hook protocol enforcement the engine
// boundary cannot afford: a callback that never consumes its completion
// token, or panics, is flagged and turned into a safe terminal decision
// instead of stalling the engine.
type Dispatcher struct {
	logger *logrus.Logger
	chains [stageCount][]registration
}

// NewDispatcher builds plugins for the given specs and wires them into
// per-stage chains. Unknown keys and builder failures abort construction.
func NewDispatcher(logger *logrus.Logger, specs []Spec) (*Dispatcher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Dispatcher{logger: logger}
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		key := normalizeKey(spec.Key)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlugin, key)
		}
		seen[key] = struct{}{}

		plugin, stages, err := globalRegistry.build(key, spec.Settings)
		if err != nil {
			return nil, err
		}
		for _, stage := range stages {
			if stage < 0 || stage >= stageCount {
				return nil, fmt.Errorf("plugin %s: invalid stage %d", key, stage)
			}
			d.chains[stage] = append(d.chains[stage], registration{key: key, plugin: plugin})
		}
		logger.WithFields(logrus.Fields{
			"action": "plugin_wired",
			"plugin": key,
			"stages": stageList(stages),
		}).Info("plugin wired into dispatch chains")
	}
	return d, nil
}

// Registered reports how many plugins are subscribed to a stage.
func (d *Dispatcher) Registered(stage Stage) int {
	if stage < 0 || stage >= stageCount {
		return 0
	}
	return len(d.chains[stage])
}

// Fire runs one stage for one transaction. next must return a fresh
// Transaction per invocation (every plugin receives its own handle over the
// same identity and bag); Fire closes each handle after its callback. The
// chain halts at the first Error or Stop.
func (d *Dispatcher) Fire(stage Stage, next func() *txn.Transaction) Result {
	result := Result{Outcome: txn.OutcomeResume}
	for _, reg := range d.chains[stage] {
		tx := next()
		outcome := d.invokeOne(reg, stage, tx)
		observability.HookInvocationsTotal.WithLabelValues(stage.String(), outcome.String()).Inc()

		if tx.Violations() > 0 {
			observability.HookViolationsTotal.WithLabelValues(stage.String(), "duplicate_terminal").Inc()
		}
		status := tx.ErrorStatus()
		if err := tx.Close(); err != nil {
			d.logger.WithError(err).
				WithFields(logging.HookFields(stage.String(), reg.key, tx.ID())).
				Error("transaction wrapper teardown failed")
		}

		if outcome != txn.OutcomeResume {
			result.Outcome = outcome
			result.ErrorStatus = status
			result.DecidedBy = reg.key
			return result
		}
	}
	return result
}

// invokeOne runs a single callback with panic containment and completion
// token enforcement.
func (d *Dispatcher) invokeOne(reg registration, stage Stage, tx *txn.Transaction) (outcome txn.Outcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.WithFields(logging.HookFields(stage.String(), reg.key, tx.ID())).
				WithField("panic", fmt.Sprintf("%v", recovered)).
				Error("hook panicked")
			observability.HookViolationsTotal.WithLabelValues(stage.String(), "panic").Inc()
			outcome = txn.OutcomeError
		}
	}()

	invoke(reg.plugin, stage, tx)

	outcome = tx.Outcome()
	if outcome == txn.OutcomeNone {
		// A callback that never decides must not stall the engine.
		d.logger.WithFields(logging.HookFields(stage.String(), reg.key, tx.ID())).
			Error("hook returned without a terminal control operation")
		observability.HookViolationsTotal.WithLabelValues(stage.String(), "unconsumed").Inc()
		outcome = txn.OutcomeStop
	}
	return outcome
}

func stageList(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.String()
	}
	return names
}
