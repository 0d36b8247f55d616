package main

import (
	"io"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"rover.json" description:"Configuration file"`
	LogFile string `long:"log-file" description:"Also write logs to this file, rotated by size"`

	Setup   SetupCommand   `command:"setup" description:"Find the bridge board, bring up the sensors and write the configuration"`
	Drive   DriveCommand   `command:"drive" description:"Interactive motor control console"`
	Sensors SensorsCommand `command:"sensors" alias:"watch" description:"Live view of the ranging sensors"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "rover - control core for a four-ESC wheeled robot with ranging sensors"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if opts.LogFile != "" {
			setupLogFile(opts.LogFile)
		}
		return cmd.Execute(args)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// logFile is the rotating log, if any. TUI commands write only to it.
var logFile io.Writer

func setupLogFile(path string) {
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))
}
