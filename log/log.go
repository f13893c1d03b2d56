// Package log adapts github.com/luxfi/log's structured Logger facade for
// the ENR bridge. Every subsystem accepts a log.Logger at construction;
// none calls fmt.Println or the standard library log package directly.
package log

import (
	luxlog "github.com/luxfi/log"
)

// Logger is the structured logging facade every subsystem is built
// against. It is an alias of luxlog's facade so that a caller wiring a
// real node can hand in whatever luxlog.Logger it already has.
type Logger = luxlog.Logger

// NewNoOp returns a Logger that discards everything. Subsystems default
// to it when no logger is injected, so unit tests never need to wire one
// up explicitly.
func NewNoOp() Logger {
	return luxlog.NewNoOpLogger()
}
