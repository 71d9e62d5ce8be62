// Package policy evaluates per-business denomination policies written in CEL.
//
// A policy is a boolean expression evaluated once per denomination with the
// variables:
//
//	amount         int        the denomination face value
//	slot           int        its 1-based position in the sorted set
//	count          int        number of denominations requested
//	denominations  list(int)  the whole sorted set
//
// Example: `amount % 5 == 0 && amount <= 1000 && count <= 9`.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// ErrRejected is returned when a denomination does not satisfy the policy.
	ErrRejected = errors.New("denomination rejected by policy")
	// ErrInvalidExpression is returned when a policy does not compile to a boolean.
	ErrInvalidExpression = errors.New("invalid policy expression")
)

// costLimit bounds a single evaluation.
const costLimit = 1000000

var env = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.IntType),
		cel.Variable("slot", cel.IntType),
		cel.Variable("count", cel.IntType),
		cel.Variable("denominations", cel.ListType(cel.IntType)),
	)
})

// Policy is a compiled denomination policy. It is safe for concurrent use.
type Policy struct {
	expression string
	program    cel.Program
}

// Compile parses and type-checks expression.
func Compile(expression string) (*Policy, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("%w: expression is empty", ErrInvalidExpression)
	}

	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := e.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression yields %s, want bool", ErrInvalidExpression, ast.OutputType())
	}

	prog, err := e.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &Policy{expression: expression, program: prog}, nil
}

// Expression returns the source text of the policy.
func (p *Policy) Expression() string {
	if p == nil {
		return ""
	}
	return p.expression
}

// Allows reports whether amount at the 1-based slot of denominations passes.
func (p *Policy) Allows(amount, slot int, denominations []int) (bool, error) {
	if p == nil {
		return true, nil
	}

	list := make([]int64, len(denominations))
	for i, d := range denominations {
		list[i] = int64(d)
	}

	out, _, err := p.program.Eval(map[string]any{
		"amount":        int64(amount),
		"slot":          int64(slot),
		"count":         int64(len(denominations)),
		"denominations": list,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating policy for %d: %w", amount, err)
	}

	allowed, ok := out.Value().(bool)
	return ok && allowed, nil
}

// Check evaluates the policy for every denomination in order and returns the
// first rejection. A nil policy allows everything.
func (p *Policy) Check(denominations []int) error {
	if p == nil {
		return nil
	}
	for i, d := range denominations {
		ok, err := p.Allows(d, i+1, denominations)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d does not satisfy %q", ErrRejected, d, p.expression)
		}
	}
	return nil
}
