package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validator checks pre-processed WGSL before it is handed to the device.
type Validator func(name, code string) error

// NagaValidator runs the naga front end over code: parse, lower to IR and validate.
// The first validation error is reported.
//
// Parameters:
//   - name: the source name, used in the error
//   - code: pre-processed WGSL
//
// Returns:
//   - error: nil if the module is valid
func NagaValidator(name, code string) error {
	ast, err := naga.Parse(code)
	if err != nil {
		return fmt.Errorf("shader %q: %w", name, err)
	}
	module, err := naga.LowerWithSource(ast, code)
	if err != nil {
		return fmt.Errorf("shader %q: lowering: %w", name, err)
	}
	errs, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("shader %q: validation: %w", name, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shader %q: validation failed: %w", name, &errs[0])
	}
	return nil
}
