// Package monitoring holds the package-level diagnostic logger shared by the
// region store. It defaults to the logrus standard logger but may be replaced
// by SetLogger; tests use this to capture or mute output.
package monitoring

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Log is the logger used by the store packages.
var Log log.FieldLogger = log.StandardLogger()

// SetLogger replaces the package logger. Passing nil installs a logger that
// discards everything.
func SetLogger(l log.FieldLogger) {
	if l == nil {
		discard := log.New()
		discard.SetOutput(io.Discard)
		Log = discard
		return
	}
	Log = l
}

// Config configures handling of log events for the command-line tools.
type Config struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// Init applies cfg to the logrus standard logger and installs it as Log.
func Init(cfg Config) error {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}
	lvl, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	Log = log.StandardLogger()
	return nil
}
