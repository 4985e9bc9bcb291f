package logs

import (
	"fmt"
	"strings"
	"sync"

	golog "github.com/ipfs/go-log/v2"
)

// GoLogListener receives every formatted log line, e.g. to forward it to a
// mobile host app.
type GoLogListener interface {
	OnGoLog(message string)
}

var (
	mu       sync.RWMutex
	listener GoLogListener
	disabled bool
)

// SetEventListener sets the listener that mirrors log lines.
func SetEventListener(l GoLogListener) {
	mu.Lock()
	listener = l
	mu.Unlock()
}

// Logger returns the named subsystem logger.
func Logger(system string) *golog.ZapEventLogger {
	return golog.Logger(system)
}

// SetLevel sets the level of every subsystem logger ("debug", "info", ...).
func SetLevel(level string) error {
	lvl, err := golog.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	golog.SetAllLoggers(lvl)
	return nil
}

func EnableLogs() {
	mu.Lock()
	disabled = false
	mu.Unlock()
	golog.SetAllLoggers(golog.LevelInfo)
}

func DisableLogs() {
	mu.Lock()
	disabled = true
	listener = nil
	mu.Unlock()
	golog.SetAllLoggers(golog.LevelFatal)
}

func forward(msg string) {
	mu.RLock()
	l := listener
	mu.RUnlock()
	if l != nil {
		l.OnGoLog(msg)
	}
}

func isDisabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return disabled
}

// Logf formats a message, hands it to the listener and logs it on the given
// subsystem logger at info level.
func Logf(log *golog.ZapEventLogger, format string, v ...any) {
	if isDisabled() {
		return
	}
	msg := fmt.Sprintf(format, v...)
	forward(msg)
	log.Info(msg)
}

// Logln is Logf with fmt.Sprintln formatting.
func Logln(log *golog.ZapEventLogger, v ...any) {
	if isDisabled() {
		return
	}
	msg := strings.TrimSpace(fmt.Sprintln(v...))
	forward(msg)
	log.Info(msg)
}
