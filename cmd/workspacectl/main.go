// Command workspacectl drives the workspace core end to end: loading the
// root manifest, resolving dependencies, reconciling managed checkouts,
// acquiring prebuilts and binary artifacts, and folding the result into a
// module graph. Structured the way golang-dep's cmd/dep is: a flat list of
// subcommands dispatched from a hand-rolled switch, no CLI framework.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
)

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory:", err)
		os.Exit(1)
	}
	c := &CLIConfig{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
		Env:        os.Environ(),
	}
	os.Exit(c.Run())
}

// CLIConfig specifies a full configuration for one workspacectl invocation.
type CLIConfig struct {
	WorkingDir     string
	Args           []string
	Env            []string
	Stdout, Stderr io.Writer
}

func (c *CLIConfig) Run() (exitCode int) {
	commands := []command{
		&checkCommand{},
		&updateCommand{},
		&editCommand{},
		&uneditCommand{},
		&resetCommand{},
		&cleanCommand{},
	}

	outLogger := log.New(c.Stdout, "", 0)
	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("workspacectl resolves and materializes dependencies for a source package workspace")
		errLogger.Println()
		errLogger.Println("Usage: workspacectl <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println(`Use "workspacectl help <command>" for more information about a command.`)
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		return 1
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")
		cmd.Register(fs)
		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printCommandHelp {
			fs.Usage()
			return 1
		}

		if err := fs.Parse(c.Args[2:]); err != nil {
			return 1
		}

		ctx, err := NewContext(c.WorkingDir, outLogger, errLogger, *verbose)
		if err != nil {
			errLogger.Printf("%v\n", err)
			return 1
		}

		if err := cmd.Run(ctx, fs.Args()); err != nil {
			errLogger.Printf("%v\n", err)
			return 1
		}
		return 0
	}

	errLogger.Printf("workspacectl: %s: no such command\n", cmdName)
	usage()
	return 1
}

