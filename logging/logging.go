// Package logging wires the per-package subsystem loggers to one
// decred/slog backend.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/decred/slog"
)

// Subsystem tags.
const (
	SubNode    = "NODE"
	SubCons    = "CONS"
	SubExec    = "EXEC"
	SubDuel    = "DUEL"
	SubRPC     = "RPC"
	SubIndexer = "INDX"
	SubStorage = "STOR"
	SubEvents  = "EVNT"
)

// Backend owns the writer and hands out one logger per subsystem.
type Backend struct {
	backend *slog.Backend
	loggers map[string]slog.Logger
}

// NewBackend creates a Backend writing to w. A nil w writes to stdout.
func NewBackend(w io.Writer) *Backend {
	if w == nil {
		w = os.Stdout
	}
	return &Backend{
		backend: slog.NewBackend(w),
		loggers: make(map[string]slog.Logger),
	}
}

// Logger returns the logger for subsystem, creating it at info level.
func (b *Backend) Logger(subsystem string) slog.Logger {
	if l, ok := b.loggers[subsystem]; ok {
		return l
	}
	l := b.backend.Logger(subsystem)
	l.SetLevel(slog.LevelInfo)
	b.loggers[subsystem] = l
	return l
}

// SetLevel applies level to every logger created so far.
func (b *Backend) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	for _, l := range b.loggers {
		l.SetLevel(lvl)
	}
	return nil
}

// Subsystems lists the subsystems created so far, sorted.
func (b *Backend) Subsystems() []string {
	out := make([]string, 0, len(b.loggers))
	for s := range b.loggers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseLevel maps trace, debug, info, warn, error, critical or off to a
// slog level. An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	lvl, ok := slog.LevelFromString(s)
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}
