// Package ai provides natural-language assistance for the engine through
// interchangeable backends: an interactive subprocess wrapping a language
// model CLI and a hosted Messages API. Callers go through the Selector and
// never know which concrete backend answered.
package ai

import "context"

// Backend answers a single prompt. Implementations retain no state
// between calls.
type Backend interface {
	Name() string
	Ask(ctx context.Context, system, prompt string) (string, error)
}
