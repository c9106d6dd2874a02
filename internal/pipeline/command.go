package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/pulse.report/internal/recording"
)

// Command is a control-surface request.
type Command int

const (
	CmdToggle Command = iota + 1
	CmdExtract
	CmdExit
)

func (c Command) String() string {
	switch c {
	case CmdToggle:
		return "toggle"
	case CmdExtract:
		return "extract"
	case CmdExit:
		return "exit"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ParseCommand accepts the command names case-insensitively.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toggle":
		return CmdToggle, nil
	case "extract":
		return CmdExtract, nil
	case "exit", "quit":
		return CmdExit, nil
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// Reply is the result of a command, with the controller status after it ran.
type Reply struct {
	// Before is the controller state when the loop picked the command up.
	Before  recording.State
	Status  recording.Status
	Outcome recording.Outcome
	Err     error
}

type request struct {
	cmd     Command
	chooser recording.DirectoryChooser
	reply   chan Reply
}

// Submit queues cmd and waits for the loop to run it. chooser overrides the
// loop's default for toggles and may be nil.
func (l *Loop) Submit(ctx context.Context, cmd Command, chooser recording.DirectoryChooser) (Reply, error) {
	req := request{cmd: cmd, chooser: chooser, reply: make(chan Reply, 1)}
	select {
	case l.reqs <- req:
	case <-l.done:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case rep := <-req.reply:
		return rep, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Toggle starts or stops recording.
func (l *Loop) Toggle(ctx context.Context, chooser recording.DirectoryChooser) (Reply, error) {
	return l.Submit(ctx, CmdToggle, chooser)
}

// Extract persists one fresh sample into the current or last session.
func (l *Loop) Extract(ctx context.Context) (Reply, error) {
	return l.Submit(ctx, CmdExtract, nil)
}

// Exit stops recording and ends Run.
func (l *Loop) Exit(ctx context.Context) (Reply, error) {
	return l.Submit(ctx, CmdExit, nil)
}
