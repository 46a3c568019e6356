// Package log is a small leveled logger threaded explicitly through
// components as a parameter (never a package-level global), the same
// way pbm/restore.go takes a `log *log.Event` argument.
package log

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level orders the severities from most to least verbose.
type Level int32

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

// verbose gates Debug-level output process-wide, flipped by the
// --verbose flag the way connector.py's root logger level is.
var verbose int32

// SetVerbose turns Debug-level logging on or off for every Event.
func SetVerbose(on bool) {
	if on {
		atomic.StoreInt32(&verbose, 1)
	} else {
		atomic.StoreInt32(&verbose, 0)
	}
}

// Event is a component- and shard-tagged logger. A nil *Event is safe
// to use and discards everything, so call sites that don't care about
// logging don't need a no-op stand-in.
type Event struct {
	component string
	shard     string
	out       *log.Logger
}

// New builds an Event for the named component, optionally tagged with
// a shard id (pass "" for shard-less components like the Supervisor
// itself).
func New(component, shard string) *Event {
	return &Event{
		component: component,
		shard:     shard,
		out:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (e *Event) tag() string {
	if e.shard == "" {
		return e.component
	}
	return e.component + "/" + e.shard
}

func (e *Event) write(lvl Level, msg string, args ...interface{}) {
	if e == nil {
		return
	}
	if lvl == Debug && atomic.LoadInt32(&verbose) == 0 {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	e.out.Printf("[%s] %s - %s", lvl, e.tag(), msg)
}

func (e *Event) Debug(msg string, args ...interface{}) { e.write(Debug, msg, args...) }
func (e *Event) Info(msg string, args ...interface{})  { e.write(Info, msg, args...) }
func (e *Event) Warn(msg string, args ...interface{})  { e.write(Warn, msg, args...) }
func (e *Event) Error(msg string, args ...interface{}) { e.write(Error, msg, args...) }

// With returns a child Event scoped to a shard id, sharing the same
// output and component tag — used by the Supervisor to hand each
// Tailer a logger already tagged with its shard.
func (e *Event) With(shard string) *Event {
	if e == nil {
		return nil
	}
	return &Event{component: e.component, shard: shard, out: e.out}
}
