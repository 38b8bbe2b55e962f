package logger

import (
	"io"
	"os"

	"market-system/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger оборачивает logrus и настраивается из LoggerConfig
type Logger struct {
	*logrus.Logger
}

// New создаёт логгер с уровнем, форматом и выводом из конфигурации.
// Некорректный уровень заменяется на info, недоступный файл на stdout.
func New(cfg *config.LoggerConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).WithField("file", cfg.File).Warn("Failed to open log file, using stdout")
		} else {
			out = io.MultiWriter(os.Stdout, file)
		}
	}
	log.SetOutput(out)

	return &Logger{Logger: log}
}
