// Package diag implements the structured diagnostic sink threaded through
// every component of the workspace core. It never writes directly to
// standard streams; rendering to a human-facing stream is the CLI's job.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Severity is the level of a diagnostic record.
type Severity uint8

const (
	Debug Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s Severity) logrusLevel() logrus.Level {
	switch s {
	case Debug:
		return logrus.DebugLevel
	case Info:
		return logrus.InfoLevel
	case Warning:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

// Record is one structured diagnostic: severity, message, package/location
// metadata, and any extra key/value pairs the emitting component attached.
type Record struct {
	Severity Severity
	Message  string
	Package  string
	File     string
	Line     int
	Metadata map[string]interface{}
}

// Sink receives every Record emitted by a Scope tree. The CLI installs a
// Sink that renders to stderr; tests install a Sink that appends to a slice
// and asserts on the resulting set.
type Sink interface {
	Emit(Record)
}

// Scope is an immutable, nestable diagnostic context. Child scopes inherit
// their parent's package/metadata and fork it, never mutate it in place, so
// concurrent fan-out subtasks (see pkg/task) can each hold their own child
// scope without a lock.
type Scope struct {
	sink     Sink
	pkg      string
	metadata map[string]interface{}
	entry    *logrus.Entry
}

// NewRoot constructs the top-level scope for one workspace operation. The
// logger is configured the way golang-dep's context.go configures its
// Verbose logger: JSON-free text formatter. Its output is discarded;
// records reach the caller only through the Sink.
func NewRoot(sink Sink) *Scope {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(io.Discard)
	return &Scope{
		sink:  sink,
		entry: logrus.NewEntry(logger),
	}
}

// Child derives a new scope scoped to a package identity, inheriting the
// parent's metadata and sink.
func (s *Scope) Child(pkg string) *Scope {
	fields := make(map[string]interface{}, len(s.metadata)+1)
	for k, v := range s.metadata {
		fields[k] = v
	}
	fields["package"] = pkg
	return &Scope{
		sink:     s.sink,
		pkg:      pkg,
		metadata: fields,
		entry:    s.entry.WithFields(logrus.Fields{"package": pkg}),
	}
}

// With returns a child scope carrying one additional metadata key/value,
// without changing the package attribution.
func (s *Scope) With(key string, value interface{}) *Scope {
	fields := make(map[string]interface{}, len(s.metadata)+1)
	for k, v := range s.metadata {
		fields[k] = v
	}
	fields[key] = value
	return &Scope{
		sink:     s.sink,
		pkg:      s.pkg,
		metadata: fields,
		entry:    s.entry.WithField(key, value),
	}
}

func (s *Scope) emit(sev Severity, msg string) {
	s.entry.Log(sev.logrusLevel(), msg)
	if s.sink != nil {
		s.sink.Emit(Record{
			Severity: sev,
			Message:  msg,
			Package:  s.pkg,
			Metadata: s.metadata,
		})
	}
}

func (s *Scope) Debugf(format string, args ...interface{})   { s.emit(Debug, sprintf(format, args...)) }
func (s *Scope) Infof(format string, args ...interface{})    { s.emit(Info, sprintf(format, args...)) }
func (s *Scope) Warningf(format string, args ...interface{}) { s.emit(Warning, sprintf(format, args...)) }
func (s *Scope) Errorf(format string, args ...interface{})   { s.emit(Error, sprintf(format, args...)) }

// CollectingSink is an in-memory Sink used by tests. It keeps records in
// emission order; tests that only care about the set of diagnostics
// compare them without regard to order.
type CollectingSink struct {
	mu      sync.Mutex
	records []Record
}

func (c *CollectingSink) Emit(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// Records returns a snapshot of everything emitted so far.
func (c *CollectingSink) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
