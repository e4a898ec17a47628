package log

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	cblog "github.com/charmbracelet/log"
)

var (
	logger *cblog.Logger
	once   sync.Once
)

func get() *cblog.Logger {
	once.Do(func() {
		logger = cblog.NewWithOptions(os.Stderr, cblog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          "dbooru",
		})
		logger.SetStyles(styles())
		if os.Getenv("DBOORU_DEBUG") != "" {
			logger.SetLevel(cblog.DebugLevel)
		}
	})
	return logger
}

func styles() *cblog.Styles {
	s := cblog.DefaultStyles()
	s.Levels[cblog.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Bold(true).
		Foreground(lipgloss.Color("63"))
	s.Levels[cblog.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Bold(true).
		Foreground(lipgloss.Color("86"))
	s.Levels[cblog.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Bold(true).
		Foreground(lipgloss.Color("192"))
	s.Levels[cblog.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Bold(true).
		Foreground(lipgloss.Color("204"))
	s.Levels[cblog.FatalLevel] = lipgloss.NewStyle().
		SetString("FATAL").
		Bold(true).
		Foreground(lipgloss.Color("134"))
	return s
}

// SetLevel accepts debug, info, warn, error or fatal. Unknown names keep the current level.
func SetLevel(level string) {
	lvl, err := cblog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		get().Warnf("unknown log level %q", level)
		return
	}
	get().SetLevel(lvl)
}

func Debug(msg any, keyvals ...any) { get().Debug(msg, keyvals...) }
func Info(msg any, keyvals ...any)  { get().Info(msg, keyvals...) }
func Warn(msg any, keyvals ...any)  { get().Warn(msg, keyvals...) }
func Error(msg any, keyvals ...any) { get().Error(msg, keyvals...) }

func Debugf(format string, args ...any) { get().Debugf(format, args...) }
func Infof(format string, args ...any)  { get().Infof(format, args...) }
func Warnf(format string, args ...any)  { get().Warnf(format, args...) }
func Errorf(format string, args ...any) { get().Errorf(format, args...) }
func Fatalf(format string, args ...any) { get().Fatalf(format, args...) }
