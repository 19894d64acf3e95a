package main

import (
	"fmt"
	"log"

	"github.com/depforge/workspace/pkg/diag"
)

// stderrSink renders diag.Records to a human-facing stream, the same split
// golang-dep's loggers.go draws between Out (normal progress) and Err
// (warnings/errors): diag.Scope never writes to a stream itself, so
// something in the CLI has to.
type stderrSink struct {
	out, err *log.Logger
	verbose  bool
}

func newStderrSink(out, errLogger *log.Logger, verbose bool) *stderrSink {
	return &stderrSink{out: out, err: errLogger, verbose: verbose}
}

func (s *stderrSink) Emit(r diag.Record) {
	switch r.Severity {
	case diag.Debug:
		if s.verbose {
			s.err.Println(formatRecord(r))
		}
	case diag.Info:
		if s.verbose {
			s.out.Println(formatRecord(r))
		}
	case diag.Warning, diag.Error:
		s.err.Println(formatRecord(r))
	}
}

func formatRecord(r diag.Record) string {
	if r.Package == "" {
		return fmt.Sprintf("%s: %s", r.Severity, r.Message)
	}
	return fmt.Sprintf("%s: %s: %s", r.Severity, r.Package, r.Message)
}
