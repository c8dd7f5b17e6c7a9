package bootstrap

import (
	"bytes"
	"testing"

	"crm_server/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewZerolog_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewZerolog(&config.Config{Environment: "production", LogLevel: tt.level}, &buf)
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNewZerolog_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&config.Config{Environment: "production", LogLevel: "info"}, &buf)
	log.Info().Str("component", "test").Msg("hello")

	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.Contains(t, buf.String(), `"service":"crm-api"`)
}
