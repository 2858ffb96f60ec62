package config

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is shared by every package of the client.
var Logger = logrus.New()

// InitLogger sets the formatter and level; unknown levels fall back to info.
func InitLogger(level string, out io.Writer) {
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if out != nil {
		Logger.SetOutput(out)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.Warnf("config: unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}
