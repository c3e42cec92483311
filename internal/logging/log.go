package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

var (
	logger  = log.New(io.Discard)
	enabled = true

	homeDir, _ = os.UserHomeDir()
)

func init() {
	dir := filepath.Join(homeDir, ".reels")
	_ = os.MkdirAll(dir, 0755)

	f, err := os.OpenFile(filepath.Join(dir, "reels.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	SetOutput(f)
}

// SetOutput redirects the log to w, keeping timestamps and caller info.
func SetOutput(w io.Writer) {
	level := log.InfoLevel
	if enabled {
		level = log.DebugLevel
	}
	logger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
		Level:           level,
	})
}

func SetEnabled(v bool) {
	enabled = v
	if enabled {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

func IsEnabled() bool {
	return enabled
}

func Logger() *log.Logger {
	return logger
}

func MPV(path string, args []string) {
	if !enabled {
		return
	}

	logger.Debug("MPV command",
		"path", path,
		"args", args,
	)
}

func HTTP(method, url string, status int, body string) {
	if !enabled {
		return
	}

	if len(body) > 512 {
		body = body[:512] + "..."
	}
	logger.Debug("HTTP request",
		"method", method,
		"url", url,
		"status", status,
		"body", body,
	)
}

// Session logs a session lifecycle step (open, close, centered, ...).
func Session(step string, keyvals ...interface{}) {
	if !enabled {
		return
	}
	logger.Debug("session "+step, keyvals...)
}

// Player logs a player handle transition for one item.
func Player(itemID, event string, keyvals ...interface{}) {
	if !enabled {
		return
	}
	logger.Debug("player "+event, append([]interface{}{"item", itemID}, keyvals...)...)
}

// Fetch records a failed page fetch. Failures are always logged, debug or not.
func Fetch(offset int, err error) {
	logger.Error("feed fetch failed", "offset", offset, "err", err)
}

func Warn(msg string, keyvals ...interface{}) {
	logger.Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...interface{}) {
	logger.Error(msg, keyvals...)
}
