// Package expr compiles the configurable tournament selector used by the
// featured endpoint. Operators tune which tournaments surface there without
// redeploying the gateway.
package expr

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/openleague/gateway/internal/catalog"
)

// Selector is a compiled boolean expression over tournament fields.
type Selector struct {
	source  string
	program cel.Program
}

// NewSelector declares the tournament fields visible to selector
// expressions and compiles the given source. Expressions that do not yield
// a boolean are rejected at startup, not at request time.
func NewSelector(expression string) (*Selector, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("featured", cel.BoolType),
		cel.Variable("sport_id", cel.IntType),
		cel.Variable("sport_name", cel.StringType),
		cel.Variable("start_date", cel.TimestampType),
		cel.Variable("end_date", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
		cel.HomogeneousAggregateLiterals(),
	)
	if err != nil {
		return nil, fmt.Errorf("expr: build environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expr: compile %q: %w", expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expr: selector %q must yield a boolean, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("expr: program %q: %w", expression, err)
	}
	return &Selector{source: expression, program: program}, nil
}

// Source returns the expression the selector was compiled from.
func (s *Selector) Source() string { return s.source }

// Matches evaluates the selector against one tournament. now is passed
// explicitly so callers control the clock in tests.
func (s *Selector) Matches(t catalog.Tournament, now time.Time) (bool, error) {
	val, _, err := s.program.Eval(map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"status":     t.Status,
		"featured":   t.Featured,
		"sport_id":   t.SportID,
		"sport_name": t.SportName,
		"start_date": t.StartDate,
		"end_date":   t.EndDate,
		"now":        now,
	})
	if err != nil {
		return false, fmt.Errorf("expr: eval %q: %w", s.source, err)
	}
	result, ok := val.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expr: selector %q produced %T, expected bool", s.source, val.Value())
	}
	return bool(result), nil
}
