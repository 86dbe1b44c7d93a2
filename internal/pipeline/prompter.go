package pipeline

import "errors"

// ErrInterrupted is returned by a Prompter when the user interrupts a
// nested prompt. It cancels the in-progress resolution outright and is
// never treated as a stage failure: the session sees it and shuts down.
var ErrInterrupted = errors.New("prompt interrupted")

// Prompter mediates the single-question prompts that handlers issue in
// the middle of resolving a query: yes/no confirmations, option
// selection and short free-text input.
type Prompter interface {
	Confirm(question string) (bool, error)
	Select(question string, options []string) (int, error)
	Input(question string) (string, error)
}

// NonInteractive declines every mutation and selection, so programmatic
// callers get direct display of results without side effects. Only
// interactive-mode callers may confirm destructive actions.
type NonInteractive struct{}

func (NonInteractive) Confirm(string) (bool, error)         { return false, nil }
func (NonInteractive) Select(string, []string) (int, error) { return -1, nil }
func (NonInteractive) Input(string) (string, error)         { return "", nil }
