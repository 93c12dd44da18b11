// pre_processor.go implements the WGSL pre-processor. It resolves conditional blocks and
// value placeholders against a Context before the source reaches validation and the device.
//
// Directives occupy a whole line:
//   - #if FLAG / #if !FLAG opens a block kept when FLAG is (or is not) enabled
//   - #else flips the innermost block
//   - #endif closes the innermost block
//
// ${NAME} anywhere in a kept line is replaced with Context.Values[NAME]. Directive lines
// and dropped lines become empty lines so WGSL error positions still match the source.
package shader

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrDirective is returned for malformed or unbalanced #if/#else/#endif directives.
	ErrDirective = errors.New("shader: malformed directive")

	// ErrUndefinedValue is returned when a ${NAME} placeholder has no value in the context.
	ErrUndefinedValue = errors.New("shader: undefined value")
)

var (
	placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	flagPattern        = regexp.MustCompile(`^!?[A-Za-z_][A-Za-z0-9_]*$`)
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct{}

// PreProcessor rewrites WGSL source for a given compile context.
type PreProcessor interface {
	// Process resolves the directives and placeholders in source.
	//
	// Parameters:
	//   - source: the raw WGSL with directives
	//   - ctx: the flags and values to resolve against
	//
	// Returns:
	//   - string: WGSL with every directive resolved, one output line per input line
	//   - error: an error wrapping ErrDirective or ErrUndefinedValue, with the line number
	Process(source string, ctx Context) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a stateless pre-processor.
//
// Returns:
//   - PreProcessor: the pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{}
}

// block tracks one open #if.
type block struct {
	line    int
	keep    bool
	parent  bool
	sawElse bool
}

func (p *preProcessor) Process(source string, ctx Context) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var stack []block

	active := func() bool {
		if len(stack) == 0 {
			return true
		}
		top := stack[len(stack)-1]
		return top.parent && top.keep
	}

	for i, line := range lines {
		n := i + 1
		trimmed := strings.TrimSpace(line)

		if directive, arg, ok := splitDirective(trimmed); ok {
			switch directive {
			case "#if":
				if !flagPattern.MatchString(arg) {
					return "", fmt.Errorf("line %d: %w: #if needs a single flag, got %q", n, ErrDirective, arg)
				}
				want := true
				if strings.HasPrefix(arg, "!") {
					want = false
					arg = arg[1:]
				}
				stack = append(stack, block{line: n, keep: ctx.Enabled(arg) == want, parent: active()})
			case "#else":
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: %w: #else without #if", n, ErrDirective)
				}
				top := &stack[len(stack)-1]
				if top.sawElse {
					return "", fmt.Errorf("line %d: %w: second #else for #if on line %d", n, ErrDirective, top.line)
				}
				top.sawElse = true
				top.keep = !top.keep
			case "#endif":
				if len(stack) == 0 {
					return "", fmt.Errorf("line %d: %w: #endif without #if", n, ErrDirective)
				}
				stack = stack[:len(stack)-1]
			}
			out = append(out, "")
			continue
		}

		if !active() {
			out = append(out, "")
			continue
		}

		resolved, err := substitute(line, ctx)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, resolved)
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("line %d: %w: #if is never closed", stack[len(stack)-1].line, ErrDirective)
	}
	return strings.Join(out, "\n"), nil
}

// splitDirective recognizes a directive line and returns the directive and its argument.
func splitDirective(line string) (string, string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", "", false
	}
	directive, arg, _ := strings.Cut(line, " ")
	switch directive {
	case "#if", "#else", "#endif":
		return directive, strings.TrimSpace(arg), true
	default:
		return "", "", false
	}
}

func substitute(line string, ctx Context) (string, error) {
	if !strings.Contains(line, "${") {
		return line, nil
	}
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(line, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := ctx.Values[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return strconv.Itoa(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: ${%s}", ErrUndefinedValue, missing)
	}
	return out, nil
}
