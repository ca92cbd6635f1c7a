package permissions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/haasonsaas/warden/pkg/models"
)

// PromptResult is a human's answer to an ask decision. Remember asks the
// caller to persist the decision for the rest of the session.
type PromptResult struct {
	Decision models.PermissionDecision
	Remember bool
}

// Prompt resolves an ask decision with a human. Ask blocks until the human
// answers or ctx is cancelled; implementations must return ctx.Err() on
// cancellation rather than inventing a decision.
type Prompt interface {
	Ask(ctx context.Context, req *models.PermissionRequest) (PromptResult, error)
}

// NullPrompt approves everything without asking. Useful in tests and in
// pipelines that pair auto mode with a permissive policy on purpose.
type NullPrompt struct{}

// NewNullPrompt creates a prompt that always allows.
func NewNullPrompt() *NullPrompt { return &NullPrompt{} }

// Ask always allows without remembering.
func (*NullPrompt) Ask(context.Context, *models.PermissionRequest) (PromptResult, error) {
	return PromptResult{Decision: models.DecisionAllow}, nil
}

// DenyPrompt refuses everything. This is the right prompt for headless runs
// where nobody can answer: an ask becomes a deny instead of a hang.
type DenyPrompt struct{}

// NewDenyPrompt creates a prompt that always denies.
func NewDenyPrompt() *DenyPrompt { return &DenyPrompt{} }

// Ask always denies without remembering.
func (*DenyPrompt) Ask(context.Context, *models.PermissionRequest) (PromptResult, error) {
	return PromptResult{Decision: models.DecisionDeny}, nil
}

// TerminalPrompt asks on an interactive terminal. When its input is a file
// descriptor that is not a terminal, every ask resolves to deny so a
// misconfigured headless run fails closed instead of blocking forever.
type TerminalPrompt struct {
	mu     sync.Mutex
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// NewTerminalPrompt creates a prompt reading from in and writing to out.
// Nil arguments default to stdin and stdout.
func NewTerminalPrompt(in io.Reader, out io.Writer) *TerminalPrompt {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &TerminalPrompt{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

type fdReader interface {
	Fd() uintptr
}

type readAnswer struct {
	line string
	err  error
}

// Ask presents the tool call, its risk tier and any detected threats, then
// reads a one-line answer: y allows once, a allows and remembers, n denies
// once, v denies and remembers. Anything else denies once.
func (p *TerminalPrompt) Ask(ctx context.Context, req *models.PermissionRequest) (PromptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.in.(fdReader); ok && !term.IsTerminal(int(f.Fd())) {
		return PromptResult{Decision: models.DecisionDeny}, nil
	}

	fmt.Fprintf(p.out, "\nTool %q requests permission (risk: %s)\n", req.ToolCall.Name, req.RiskLevel)
	if req.Inspection != nil {
		for _, threat := range req.Inspection.Threats {
			fmt.Fprintf(p.out, "  threat [%s] %s: %s (matched %q)\n",
				threat.Level, threat.Type, threat.Description, threat.MatchedPattern)
		}
	}
	fmt.Fprint(p.out, "Allow? [y]es once / [a]lways / [n]o / ne[v]er: ")

	answers := make(chan readAnswer, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		answers <- readAnswer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return PromptResult{}, ctx.Err()
	case answer := <-answers:
		if answer.err != nil && answer.line == "" {
			// EOF or read failure: fail closed.
			return PromptResult{Decision: models.DecisionDeny}, nil
		}
		switch strings.ToLower(strings.TrimSpace(answer.line)) {
		case "y", "yes":
			return PromptResult{Decision: models.DecisionAllow}, nil
		case "a", "always":
			return PromptResult{Decision: models.DecisionAllow, Remember: true}, nil
		case "v", "never":
			return PromptResult{Decision: models.DecisionDeny, Remember: true}, nil
		default:
			return PromptResult{Decision: models.DecisionDeny}, nil
		}
	}
}
