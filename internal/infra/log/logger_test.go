package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  zerolog.Level
	}{
		{name: "dev defaults to debug", env: "dev", want: zerolog.DebugLevel},
		{name: "prod defaults to info", env: "prod", want: zerolog.InfoLevel},
		{name: "explicit level wins", env: "dev", level: "warn", want: zerolog.WarnLevel},
		{name: "garbage level ignored", env: "prod", level: "loud", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(&bytes.Buffer{}, tt.env, tt.level)
			if got := logger.GetLevel(); got != tt.want {
				t.Fatalf("уровень %v, ожидали %v", got, tt.want)
			}
		})
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "prod", ""), "feed")
	logger.Info().Msg("ok")
	if !strings.Contains(buf.String(), `"component":"feed"`) {
		t.Fatalf("ожидали поле component, получили %s", buf.String())
	}
}
