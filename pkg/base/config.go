package base

import (
	"time"

	"github.com/cuemby/eventbase/pkg/jetlog"
	"github.com/cuemby/eventbase/pkg/projector"
	"github.com/rs/zerolog"
)

// Config carries the construction inputs for one Base.
type Config struct {
	// StreamName identifies the log stream and is the subject prefix for
	// every key's PUT/DELETE events.
	StreamName string

	// StatsStreamName, if non-empty, enables best-effort stats publishing
	// on "<StatsStreamName>.stats".
	StatsStreamName string

	// DataDir is the local store root. Defaults to a process-local temp
	// directory if empty.
	DataDir string

	// OnMessage, if set, is invoked in projection order for every applied
	// event before oldData is attached.
	OnMessage projector.EventObserver

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger zerolog.Logger
}

func (c Config) logger() zerolog.Logger {
	return c.Logger
}

// lastAccessedClock lets tests stub "now" for idle-sweep behavior; real
// callers use time.Now.
var lastAccessedClock = time.Now
