package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	context_ "github.com/mkrupp/storefront/internal/infra/context"
)

func newTestLogger(buf *bytes.Buffer, pkgLevels map[string]slog.Level, name string) Logger {
	h := &ConsoleHandler{Output: buf, Level: LevelDebug, PkgLevels: pkgLevels}

	return slog.New(NewContextHandler(h)).With(loggerNameKey, name)
}

func TestConsoleHandlerWritesContextValues(t *testing.T) {
	var buf bytes.Buffer

	ctx := context_.WithUserID(context_.WithTraceID(context.Background(), "abc"), 7)
	newTestLogger(&buf, nil, "svc.cartsvc").InfoContext(ctx, "cart activated", Group("cart", "items", 2))

	out := buf.String()
	assert.Contains(t, out, "[INFO] cart activated")
	assert.Contains(t, out, "logger=svc.cartsvc")
	assert.Contains(t, out, "cart.items=2")
	assert.Contains(t, out, "trace.id=abc")
	assert.Contains(t, out, "userId=7")
	assert.NotContains(t, out, ansiReset)
}

func TestConsoleHandlerPackageFilter(t *testing.T) {
	levels := map[string]slog.Level{
		"":            LevelError,
		"svc":         LevelWarn,
		"svc.cartsvc": LevelDebug,
	}

	tests := []struct {
		logger string
		level  slog.Level
		want   bool
	}{
		{"svc.cartsvc", LevelDebug, true},
		{"svc.productsvc", LevelInfo, false},
		{"svc.productsvc", LevelWarn, true},
		{"repo.kv", LevelWarn, false},
		{"repo.kv", LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.logger+"/"+tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer

			newTestLogger(&buf, levels, tt.logger).Log(context.Background(), tt.level, "message")

			assert.Equal(t, tt.want, buf.Len() > 0)
		})
	}
}

func TestConsoleHandlerColors(t *testing.T) {
	var buf bytes.Buffer

	h := &ConsoleHandler{Output: &buf, Level: LevelDebug, Colors: true}
	slog.New(h).Warn("careful")

	assert.Contains(t, buf.String(), ansiYellow+"[WARN]"+ansiReset)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, parseLogLevel("DEBUG", LevelInfo))
	assert.Equal(t, LevelWarn, parseLogLevel("warn", LevelInfo))
	assert.Equal(t, LevelInfo, parseLogLevel("verbose", LevelInfo))
}
