package app

import (
	"log/slog"
	"testing"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/logging"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		format         string
		reportToSentry bool
		wantFanout     bool
	}{
		{name: "text console only", format: "text"},
		{name: "json console only", format: "json"},
		{name: "json with sentry", format: "json", reportToSentry: true, wantFanout: true},
		{name: "text with sentry", format: "text", reportToSentry: true, wantFanout: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{LogFormat: tt.format, LogLevel: slog.LevelInfo}
			logger := newLogger(cfg, tt.reportToSentry)
			if logger == nil {
				t.Fatalf("expected a logger")
			}
			_, fanout := logger.Handler().(*logging.Fanout)
			if fanout != tt.wantFanout {
				t.Fatalf("expected fanout=%v, got handler %T", tt.wantFanout, logger.Handler())
			}
		})
	}
}
