// Package logger richtet logrus für den Dienst ein.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init setzt Level, Format und Ausgabe des Standard-Loggers. Es wird immer
// nach stdout geschrieben, mit log.file zusätzlich in die Datei. Der
// zurückgegebene Closer schließt diese Datei beim Herunterfahren.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Ungültiges Log-Level '%s', verwende 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(formatter(cfg.Format))

	out := []io.Writer{os.Stdout}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			// ohne Datei weiterlaufen, stdout genügt im Container
			log.Errorf("Log-Datei nicht verfügbar: %v", err)
		} else {
			out = append(out, file)
			closer = file
		}
	}
	log.SetOutput(io.MultiWriter(out...))

	log.Debugf("Logger initialisiert (Level %s, Format %s)", level, cfg.Format)
	return closer, nil
}

func formatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{}
	}
	return &log.TextFormatter{FullTimestamp: true}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
}

// Component liefert den Logger-Eintrag für einen Teil der Pipeline.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
