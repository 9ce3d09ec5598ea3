package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT",
		"IDLE_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL",
		"LOG_PRETTY", "API_BASE_PATH", "DB_PATH", "PAYMENT_DETAILS",
		"UPCOMING_WINDOW_DAYS", "HISTORY_LIMIT", "TELEGRAM_BOT_TOKEN",
		"OPERATOR_CHAT_ID", "SUPPORT_HANDLE", "TELEGRAM_POLL_TIMEOUT",
		"NOTIFY_TEXT_TIMEOUT", "NOTIFY_MEDIA_TIMEOUT", "REMINDER_ENABLED",
		"REMINDER_HOUR", "RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS",
		"ENABLE_HSTS", "HSTS_MAX_AGE", "IDEMPOTENCY_TTL", "OTEL_ENABLED",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q; want 8080", cfg.Port)
	}
	if cfg.DBPath != "flightdesk.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.Notifier.TextTimeout != 10*time.Second || cfg.Notifier.MediaTimeout != 20*time.Second {
		t.Errorf("notifier timeouts = %v/%v", cfg.Notifier.TextTimeout, cfg.Notifier.MediaTimeout)
	}
	if !cfg.Reminder.Enabled || cfg.Reminder.Hour != 9 {
		t.Errorf("reminder defaults = %+v", cfg.Reminder)
	}
	if cfg.UpcomingWindowDays != 5 || cfg.HistoryLimit != 300 {
		t.Errorf("window/history = %d/%d", cfg.UpcomingWindowDays, cfg.HistoryLimit)
	}
	if cfg.Telegram.PollTimeout != 60 {
		t.Errorf("PollTimeout = %d", cfg.Telegram.PollTimeout)
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "bogus")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("OPERATOR_CHAT_ID", "7721918273")
	t.Setenv("SUPPORT_HANDLE", "@desk_support")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q; want release", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q; want /api/v2", cfg.APIBasePath)
	}
	if cfg.Telegram.OperatorChatID != 7721918273 {
		t.Errorf("OperatorChatID = %d", cfg.Telegram.OperatorChatID)
	}
	if cfg.Telegram.SupportHandle != "desk_support" {
		t.Errorf("SupportHandle = %q; want desk_support", cfg.Telegram.SupportHandle)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		key, val, wantSub string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"READ_TIMEOUT", "-1s", "timeouts"},
		{"MAX_HEADER_BYTES", "-5", "MAX_HEADER_BYTES"},
		{"REMINDER_HOUR", "24", "REMINDER_HOUR"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"NOTIFY_TEXT_TIMEOUT", "-10s", "notifier"},
		{"UPCOMING_WINDOW_DAYS", "0", "UPCOMING_WINDOW_DAYS"},
		{"HISTORY_LIMIT", "0", "HISTORY_LIMIT"},
		{"IDEMPOTENCY_TTL", "-1h", "IDEMPOTENCY_TTL"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("Load with %s=%s: err = %v; want mention of %q", tc.key, tc.val, err, tc.wantSub)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
