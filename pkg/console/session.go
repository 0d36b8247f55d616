package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gwillem/rover/pkg/drive"
)

// Executor is the part of drive.Executor the console needs.
type Executor interface {
	Apply(ctx context.Context, cmd drive.Command) error
	Repeat(ctx context.Context) error
	Status() []drive.OutputStatus
	State() drive.State
	Phase() drive.Phase
}

// Session is one interactive operator session.
type Session struct {
	exec Executor

	// Prompt is printed before every line; empty disables it.
	Prompt string
	// Interrupt, when set, cancels the running command. An interrupt while
	// idle stops the motors.
	Interrupt <-chan os.Signal
}

// NewSession creates a session driving exec.
func NewSession(exec Executor) *Session {
	return &Session{exec: exec, Prompt: "\nEnter command: "}
}

// Run reads commands from in until QUIT, end of input or ctx is done.
// Output and errors for the operator go to out. Run does not shut the
// executor down; the caller owns that.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintln(out, "Motor Control Interface")
	fmt.Fprintln(out, "Type 'HELP' for a list of commands or 'QUIT' to exit")

	for {
		if s.Prompt != "" {
			fmt.Fprint(out, s.Prompt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-s.Interrupt:
			fmt.Fprintln(out, "\nOperation cancelled")
			s.report(out, s.exec.Apply(ctx, drive.Command{Motion: drive.Halt}))
		case line := <-lines:
			quit, err := s.handle(ctx, line, out)
			if quit {
				return nil
			}
			s.report(out, err)
		}
	}
}

func (s *Session) handle(ctx context.Context, line string, out io.Writer) (bool, error) {
	req, err := Parse(line)
	switch {
	case errors.Is(err, ErrEmpty):
		return false, nil
	case errors.Is(err, ErrUnknownCommand):
		fmt.Fprintf(out, "Unknown command: %s\n", line)
		PrintHelp(out)
		return false, nil
	case err != nil:
		return false, err
	}

	switch req.Verb {
	case VerbQuit:
		return true, nil
	case VerbHelp:
		PrintHelp(out)
		return false, nil
	case VerbStatus:
		s.printStatus(out)
		return false, nil
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.Interrupt != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-s.Interrupt:
				fmt.Fprintln(out, "\nOperation cancelled")
				cancel()
			case <-done:
			}
		}()
	}

	if req.Verb == VerbRepeat {
		return false, s.exec.Repeat(cmdCtx)
	}
	if d := req.Command.Duration; d != nil {
		fmt.Fprintf(out, "Running for %v...\n", *d)
	}
	return false, s.exec.Apply(cmdCtx, req.Command)
}

func (s *Session) report(out io.Writer, err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// interrupted command, motors already stopped
	case errors.Is(err, drive.ErrNoPriorCommand):
		fmt.Fprintln(out, "No previous command to repeat")
	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}
}

func (s *Session) printStatus(out io.Writer) {
	fmt.Fprintln(out, "\nCurrent Motor Settings:")
	for _, o := range s.exec.Status() {
		if o.Err != nil {
			fmt.Fprintf(out, "  %s (pin %d): error: %v\n", o.Output, o.Pin, o.Err)
			continue
		}
		fmt.Fprintf(out, "  %s (pin %d): %d\n", o.Output, o.Pin, o.Duty)
	}

	st := s.exec.State()
	last := "none"
	if st.LastIntent != nil {
		last = st.LastIntent.String()
	}
	fmt.Fprintf(out, "  phase: %s, last command: %s, speed: %.2f\n", s.exec.Phase(), last, st.LastSpeed)
}

// PrintHelp writes the command table to out.
func PrintHelp(out io.Writer) {
	fmt.Fprintln(out, "\nMotor Control Commands:")
	for _, e := range Help {
		fmt.Fprintf(out, "  %-14s - %s\n", e.Usage, e.Description)
	}
	fmt.Fprintln(out, "\nExamples:")
	for _, e := range examples {
		fmt.Fprintf(out, "  %-14s - %s\n", e.Usage, e.Description)
	}
}
