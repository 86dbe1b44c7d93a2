package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/evan/mailpilot/internal/pipeline"
)

// readlinePrompter implements pipeline.Prompter on top of the session's
// readline instance. The session has two explicit modes: line-input mode
// (the outer loop's prompt, with history recall) and single-question
// mode. enterQuestion/exitQuestion is the only transition between them,
// so the terminal state is always restored and arrow-key recall keeps
// working after a nested prompt.
type readlinePrompter struct {
	rl         *readline.Instance
	mainPrompt string
}

func (p *readlinePrompter) enterQuestion(question string) {
	p.rl.SetPrompt(question + " ")
}

func (p *readlinePrompter) exitQuestion() {
	p.rl.SetPrompt(p.mainPrompt)
}

func (p *readlinePrompter) ask(question string) (string, error) {
	p.enterQuestion(question)
	defer p.exitQuestion()

	line, err := p.rl.Readline()
	if err != nil {
		// A ^C at a nested prompt cancels the whole action, not just
		// the question.
		if errors.Is(err, readline.ErrInterrupt) {
			return "", pipeline.ErrInterrupted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. Anything but an explicit yes is no.
func (p *readlinePrompter) Confirm(question string) (bool, error) {
	answer, err := p.ask(question + " [y/N]")
	if err != nil {
		return false, err
	}

	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// Select asks the user to pick one of the options by number. An empty or
// unparseable answer selects nothing (-1).
func (p *readlinePrompter) Select(question string, options []string) (int, error) {
	fmt.Println(question)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}

	answer, err := p.ask(fmt.Sprintf("Choice [1-%d, empty to skip]:", len(options)))
	if err != nil {
		return -1, err
	}

	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(options) {
		return -1, nil
	}
	return n - 1, nil
}

// Input asks a single free-text question.
func (p *readlinePrompter) Input(question string) (string, error) {
	return p.ask(question)
}
