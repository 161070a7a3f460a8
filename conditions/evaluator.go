// Package conditions evaluates detector condition groups against packet
// values. It runs downstream of dispatch: the engine resolves which
// detectors see a packet, this package decides whether they trigger.
package conditions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/dispatch/dispatch"
)

// operatorExpressions maps a condition type to the CEL expression that
// implements it. Each expression sees two variables: the input value
// and the condition's comparison operand.
var operatorExpressions = map[string]string{
	dispatch.ConditionEq:  `value == comparison`,
	dispatch.ConditionNe:  `value != comparison`,
	dispatch.ConditionGt:  `value > comparison`,
	dispatch.ConditionGte: `value >= comparison`,
	dispatch.ConditionLt:  `value < comparison`,
	dispatch.ConditionLte: `value <= comparison`,
}

// Evaluator compiles one CEL program per condition operator and applies
// them to condition groups. Thread-safe for concurrent evaluation.
type Evaluator struct {
	env      *cel.Env
	programs map[string]cel.Program // operator type -> compiled program
	mu       sync.RWMutex
}

// NewEvaluator creates an evaluator with the built-in comparison
// operators precompiled.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("comparison", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ev := &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}

	for op, expression := range operatorExpressions {
		if err := ev.RegisterOperator(op, expression); err != nil {
			return nil, fmt.Errorf("failed to compile operator %s: %w", op, err)
		}
	}

	return ev, nil
}

// RegisterOperator compiles a CEL expression and makes it available as
// a condition type. The expression may reference the variables value
// and comparison. Re-registering an operator replaces it.
func (ev *Evaluator) RegisterOperator(op, expression string) error {
	ast, issues := ev.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	// Cost limit guards against runaway custom expressions.
	prog, err := ev.env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	ev.mu.Lock()
	ev.programs[op] = prog
	ev.mu.Unlock()

	return nil
}

// EvaluateCondition applies one condition to a value. A matching
// comparison yields the condition's result; a non-match yields false.
func (ev *Evaluator) EvaluateCondition(c dispatch.Condition, value any) (bool, error) {
	ev.mu.RLock()
	prog, exists := ev.programs[c.Type]
	ev.mu.RUnlock()

	if !exists {
		return false, fmt.Errorf("unknown condition type %q", c.Type)
	}

	out, _, err := prog.Eval(map[string]any{
		"value":      value,
		"comparison": c.Comparison,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %s: %w", c.ID, err)
	}

	matched, ok := out.Value().(bool)
	if !ok || !matched {
		return false, nil
	}

	return c.ConditionResult, nil
}

// EvaluateGroup reports whether a condition group triggers for a value.
// A nil group places no restriction on the detector and triggers.
// A group with no conditions triggers only under the none logic type.
// An unknown logic type is an error: it means the group is
// misconfigured, not that it quietly fails to trigger.
func (ev *Evaluator) EvaluateGroup(group *dispatch.ConditionGroup, value any) (bool, error) {
	if group == nil {
		return true, nil
	}

	switch group.LogicType {
	case dispatch.LogicAny:
		for _, c := range group.Conditions {
			result, err := ev.EvaluateCondition(c, value)
			if err != nil {
				return false, err
			}
			if result {
				return true, nil
			}
		}
		return false, nil

	case dispatch.LogicAll:
		if len(group.Conditions) == 0 {
			return false, nil
		}
		for _, c := range group.Conditions {
			result, err := ev.EvaluateCondition(c, value)
			if err != nil {
				return false, err
			}
			if !result {
				return false, nil
			}
		}
		return true, nil

	case dispatch.LogicNone:
		for _, c := range group.Conditions {
			result, err := ev.EvaluateCondition(c, value)
			if err != nil {
				return false, err
			}
			if result {
				return false, nil
			}
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown logic type %q for condition group %s", group.LogicType, group.ID)
	}
}
