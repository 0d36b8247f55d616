// Package console turns lines of operator text into validated drive
// commands and runs the interactive command loop.
package console

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gwillem/rover/pkg/drive"
)

var (
	ErrEmpty           = errors.New("empty command")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Verb is the action a line asks for.
type Verb int

const (
	VerbMove Verb = iota
	VerbRepeat
	VerbStatus
	VerbHelp
	VerbQuit
)

// Request is a parsed line. Command is only meaningful for VerbMove.
type Request struct {
	Verb    Verb
	Command drive.Command
}

// Parse reads "VERB [speed] [T seconds]". Verbs are case-insensitive.
func Parse(line string) (Request, error) {
	parts := strings.Fields(strings.ToUpper(line))
	if len(parts) == 0 {
		return Request{}, ErrEmpty
	}

	verb, args := parts[0], parts[1:]
	switch verb {
	case "REPEAT", "R":
		return Request{Verb: VerbRepeat}, nil
	case "STATUS":
		return Request{Verb: VerbStatus}, nil
	case "HELP", "?":
		return Request{Verb: VerbHelp}, nil
	case "QUIT", "EXIT":
		return Request{Verb: VerbQuit}, nil
	}

	motion, err := drive.ParseMotion(verb)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %s", ErrUnknownCommand, verb)
	}
	req := Request{Verb: VerbMove, Command: drive.Command{Motion: motion}}
	if motion.IsStop() {
		return req, nil
	}

	if len(args) > 0 && args[0] != "T" {
		s, err := parseSpeed(args[0])
		if err != nil {
			return Request{}, err
		}
		req.Command.Speed = &s
		args = args[1:]
	}

	if len(args) > 0 {
		if args[0] != "T" || len(args) != 2 {
			return Request{}, fmt.Errorf("%w: use 'T seconds'", ErrInvalidArgument)
		}
		d, err := parseSeconds(args[1])
		if err != nil {
			return Request{}, err
		}
		req.Command.Duration = &d
	}

	return req, nil
}

func parseSpeed(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: speed value %q", ErrInvalidArgument, s)
	}
	return v, nil
}

// maxSeconds is the longest duration a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v >= maxSeconds {
		return 0, fmt.Errorf("%w: time value %q", ErrInvalidArgument, s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

// Entry documents one console verb.
type Entry struct {
	Usage       string
	Description string
}

// Help lists the console verbs in display order.
var Help = []Entry{
	{"N [speed]", "Move North (forward) at optional speed (0.0-1.0)"},
	{"S [speed]", "Move South (backward) at optional speed (0.0-1.0)"},
	{"E [speed]", "Move East (right) at optional speed (0.0-1.0)"},
	{"W [speed]", "Move West (left) at optional speed (0.0-1.0)"},
	{"CW [speed]", "Rotate clockwise at optional speed (0.0-1.0)"},
	{"CCW [speed]", "Rotate counter-clockwise at optional speed (0.0-1.0)"},
	{"X", "Stop all motors"},
	{"... T seconds", "Run the command for the given seconds, then stop"},
	{"REPEAT | R", "Repeat the last movement command"},
	{"STATUS", "Display current motor settings"},
	{"HELP", "Display this help menu"},
	{"QUIT | EXIT", "Stop the motors and exit"},
}

var examples = []Entry{
	{"N 0.5", "Move forward at half speed"},
	{"CW 0.7", "Rotate clockwise at 70% speed"},
	{"N", "Move forward at the last speed (0.2 at start)"},
	{"N 0.8 T 2.5", "Move forward at 80% speed for 2.5 seconds"},
}
