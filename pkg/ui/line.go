package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/minerba/pkg/orchestrator"
	"github.com/pkg/errors"
	input "github.com/tcnksm/go-input"
)

// Prompter reads the next user message. It returns io.EOF when input ends.
type Prompter interface {
	Prompt() (string, error)
}

// TerminalPrompter asks on an interactive terminal with go-input.
type TerminalPrompter struct {
	UI *input.UI
}

func NewTerminalPrompter(r io.Reader, w io.Writer) *TerminalPrompter {
	return &TerminalPrompter{UI: &input.UI{Writer: w, Reader: r}}
}

func (p *TerminalPrompter) Prompt() (string, error) {
	answer, err := p.UI.Ask("you", &input.Options{
		HideOrder: true,
	})
	if err != nil {
		if errors.Is(err, input.ErrInterrupted) {
			return "", io.EOF
		}
		return "", err
	}
	return answer, nil
}

// ReaderPrompter reads one message per line, for piped input.
type ReaderPrompter struct {
	scanner *bufio.Scanner
}

func NewReaderPrompter(r io.Reader) *ReaderPrompter {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReaderPrompter{scanner: sc}
}

func (p *ReaderPrompter) Prompt() (string, error) {
	if p.scanner.Scan() {
		return p.scanner.Text(), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// RunLineMode is the plain-text chat loop used when no terminal UI is
// available. It stops on EOF, /quit or when ctx is done.
func RunLineMode(ctx context.Context, backend *TurnBackend, p Prompter, out io.Writer, initErr error) error {
	if initErr != nil {
		_, _ = fmt.Fprintln(out, initErr.Error())
		return initErr
	}
	if s := backend.Session(); s != nil && s.AssistantName != "" {
		_, _ = fmt.Fprintf(out, "Talking to %s. Type /quit to exit.\n", s.AssistantName)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := p.Prompt()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "could not read input")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == "/quit" || text == "/exit" {
			return nil
		}

		cmd, err := backend.Start(ctx, text)
		if err != nil {
			return err
		}
		res, err := turnResult(cmd())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, res.Display())
	}
}

func turnResult(msg tea.Msg) (orchestrator.Result, error) {
	finished, ok := msg.(TurnFinishedMsg)
	if !ok {
		return orchestrator.Result{}, errors.Errorf("turn ended with unexpected message %T", msg)
	}
	return finished.Result, nil
}
