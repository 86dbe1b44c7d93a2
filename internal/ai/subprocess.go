package ai

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Subprocess runs a language-model CLI, writes the prompt to its input
// stream and collects output until the process exits. The timeout is
// enforced by terminating the process.
type Subprocess struct {
	command string
	args    []string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewSubprocess creates a subprocess backend. The command string may
// carry arguments separated by whitespace.
func NewSubprocess(command string, timeout time.Duration, logger *logrus.Logger) *Subprocess {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		// A blank command cannot run; Ask will report it cleanly.
		return &Subprocess{timeout: timeout, logger: logger}
	}
	var args []string
	if len(fields) > 1 {
		args = fields[1:]
	}
	return &Subprocess{
		command: fields[0],
		args:    args,
		timeout: timeout,
		logger:  logger,
	}
}

// Name returns the backend name
func (s *Subprocess) Name() string {
	return "subprocess:" + s.command
}

// Ask writes the system prompt and query to the CLI's stdin and returns
// its full stdout.
func (s *Subprocess) Ask(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Stdin = strings.NewReader(system + "\n\n" + prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%s timed out after %s", s.command, s.timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s failed: %s: %w", s.command, msg, err)
		}
		return "", fmt.Errorf("%s failed: %w", s.command, err)
	}

	s.logger.WithFields(logrus.Fields{
		"command": s.command,
		"elapsed": elapsed.Round(time.Millisecond),
	}).Debug("Subprocess backend answered")

	return strings.TrimSpace(stdout.String()), nil
}
