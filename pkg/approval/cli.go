package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// CLIHandler prompts for decisions on a terminal. One prompt is presented at
// a time; the answer maps y/a/n/d to the four decisions.
type CLIHandler struct {
	reader io.Reader
	writer io.Writer
}

// NewCLIHandler creates a terminal-backed approval handler.
func NewCLIHandler(reader io.Reader, writer io.Writer) *CLIHandler {
	return &CLIHandler{reader: reader, writer: writer}
}

// Ask implements Handler.
func (c *CLIHandler) Ask(ctx context.Context, prompt Prompt) (Decision, error) {
	c.display(prompt)

	decisionChan := make(chan Decision, 1)
	errChan := make(chan error, 1)

	go func() {
		decision, err := c.readDecision()
		if err != nil {
			errChan <- err
			return
		}
		decisionChan <- decision
	}()

	select {
	case decision := <-decisionChan:
		return decision, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		fmt.Fprintln(c.writer, "\n  approval prompt abandoned")
		return "", ctx.Err()
	}
}

func (c *CLIHandler) display(prompt Prompt) {
	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "  ── approval required ──")
	fmt.Fprintf(c.writer, "  Tool:        %s (%s)\n", prompt.Tool, prompt.SideEffect)
	fmt.Fprintf(c.writer, "  Call:        %s\n", prompt.CallID)

	if len(prompt.Args) > 0 {
		if data, err := json.MarshalIndent(prompt.Args, "  ", "  "); err == nil {
			fmt.Fprintf(c.writer, "  Args:        %s\n", string(data))
		}
	}

	fmt.Fprintln(c.writer, "")
	fmt.Fprint(c.writer, "  Run this tool? [y]es once / [a]lways / [n]o / [d]efer: ")
}

func (c *CLIHandler) readDecision() (Decision, error) {
	scanner := bufio.NewScanner(c.reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		// EOF counts as a refusal.
		return DecisionDeny, nil
	}

	input := strings.TrimSpace(strings.ToLower(scanner.Text()))
	switch input {
	case "y", "yes":
		return DecisionApproveOnce, nil
	case "a", "always":
		return DecisionApproveAlways, nil
	case "n", "no", "":
		return DecisionDeny, nil
	case "d", "defer":
		return DecisionDefer, nil
	default:
		log.Warn().Str("input", input).Msg("Unrecognized approval input, treating as deny")
		return DecisionDeny, nil
	}
}
