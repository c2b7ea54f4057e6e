package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, env string
		wantLevel  logrus.Level
		wantJSON   bool
	}{
		{"debug", "development", logrus.DebugLevel, false},
		{"WARN", "production", logrus.WarnLevel, true},
		{"nonsense", "staging", logrus.InfoLevel, true},
	}
	for _, tt := range tests {
		logger := New(tt.level, tt.env)
		if logger.GetLevel() != tt.wantLevel {
			t.Fatalf("New(%q,%q) level = %v, want %v", tt.level, tt.env, logger.GetLevel(), tt.wantLevel)
		}
		_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
		if isJSON != tt.wantJSON {
			t.Fatalf("New(%q,%q) json formatter = %v, want %v", tt.level, tt.env, isJSON, tt.wantJSON)
		}
	}
}
