// Package guard compiles and evaluates job guard conditions ("if:" keys).
//
// Guards are CEL expressions evaluated against a GitHub-shaped context with a
// single "github" variable. The GitHub expression subset used by workflow
// guards (property access, ==, !=, &&, ||, !, single-quoted strings) is valid
// CEL, so most guards compile unchanged.
package guard

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/coreeng/check-dispatch/internal/event"
)

// ErrGuard is returned when a guard cannot be compiled or evaluated.
var ErrGuard = errors.New("job guard")

// costLimit bounds evaluation of a single guard.
const costLimit = 100000

// Compiler holds the CEL environment guards are compiled in.
type Compiler struct {
	env *cel.Env
}

// NewCompiler creates a compiler with the "github" context variable and the
// job status functions available to guards of jobs without dependencies.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("github", cel.DynType),
		statusFunction("always", true),
		statusFunction("success", true),
		statusFunction("failure", false),
		statusFunction("cancelled", false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

func statusFunction(name string, result bool) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_status", []*cel.Type{}, cel.BoolType,
			cel.FunctionBinding(func(...ref.Val) ref.Val {
				return types.Bool(result)
			}),
		),
	)
}

// Guard is a compiled job guard. The zero value and a Guard compiled from an
// empty expression always pass.
type Guard struct {
	expr string
	prg  cel.Program
}

// Compile compiles expr. Expressions whose static type is neither bool nor
// dynamic are rejected.
func (c *Compiler) Compile(expr string) (*Guard, error) {
	if expr == "" {
		return &Guard{}, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile %q: %w", ErrGuard, expr, issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(types.BoolType) && !out.IsExactType(types.DynType) {
		return nil, fmt.Errorf("%w: %q has type %s, want bool", ErrGuard, expr, out)
	}

	prg, err := c.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: program %q: %w", ErrGuard, expr, err)
	}

	return &Guard{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (g *Guard) String() string {
	return g.expr
}

// Eval evaluates the guard for ev.
func (g *Guard) Eval(ev event.Event) (bool, error) {
	if g == nil || g.prg == nil {
		return true, nil
	}

	out, _, err := g.prg.Eval(Context(ev))
	if err != nil {
		return false, fmt.Errorf("%w: evaluate %q: %w", ErrGuard, g.expr, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q evaluated to %T, want bool", ErrGuard, g.expr, out.Value())
	}
	return matched, nil
}

// Context builds the activation a guard is evaluated against. Properties an
// event does not carry are present with their zero value, which mirrors how
// GitHub coerces null in comparisons such as "draft == false".
func Context(ev event.Event) map[string]any {
	branch := ev.BranchName()
	refName := branch
	if tag := ev.TagName(); tag != "" {
		refName = tag
	}

	gitRef := ev.Ref
	if gitRef == "" && branch != "" {
		gitRef = "refs/heads/" + branch
	}

	var baseRef string
	if ev.Kind != event.KindPush {
		baseRef = branch
	}

	return map[string]any{
		"github": map[string]any{
			"event_name": string(ev.Kind),
			"ref":        gitRef,
			"ref_name":   refName,
			"base_ref":   baseRef,
			"head_ref":   ev.HeadBranch,
			"event": map[string]any{
				"action": ev.Action,
				"pull_request": map[string]any{
					"draft": ev.IsDraft(),
					"base":  map[string]any{"ref": baseRef},
					"head":  map[string]any{"ref": ev.HeadBranch},
				},
			},
		},
	}
}
