package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %v, want %v", cfg.Port, DefaultPort)
	}
	if cfg.DB != DefaultDBPath {
		t.Errorf("DB = %v, want %v", cfg.DB, DefaultDBPath)
	}
	if cfg.TLSCertFile != "" || cfg.TLSKeyFile != "" {
		t.Errorf("TLS cert/key = %v/%v, want empty", cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.DisconnectTimeout != DefaultDisconnectTimeout {
		t.Errorf("DisconnectTimeout = %v, want %v", cfg.DisconnectTimeout, DefaultDisconnectTimeout)
	}
	if cfg.CompressionLevel != DefaultCompressionLevel {
		t.Errorf("CompressionLevel = %v, want %v", cfg.CompressionLevel, DefaultCompressionLevel)
	}
	if cfg.QualityLevel != DefaultQualityLevel {
		t.Errorf("QualityLevel = %v, want %v", cfg.QualityLevel, DefaultQualityLevel)
	}
	if cfg.SessionIdleTimeout != DefaultSessionIdleTimeout {
		t.Errorf("SessionIdleTimeout = %v, want %v", cfg.SessionIdleTimeout, DefaultSessionIdleTimeout)
	}
	if cfg.SessionCleanupInterval != DefaultSessionCleanupInterval {
		t.Errorf("SessionCleanupInterval = %v, want %v", cfg.SessionCleanupInterval, DefaultSessionCleanupInterval)
	}
	if cfg.JWTSecret != "" {
		t.Errorf("JWTSecret = %v, want empty", cfg.JWTSecret)
	}
	if cfg.JWTAccessExpiry != DefaultJWTAccessExpiry {
		t.Errorf("JWTAccessExpiry = %v, want %v", cfg.JWTAccessExpiry, DefaultJWTAccessExpiry)
	}
	if cfg.JWTRefreshExpiry != DefaultJWTRefreshExpiry {
		t.Errorf("JWTRefreshExpiry = %v, want %v", cfg.JWTRefreshExpiry, DefaultJWTRefreshExpiry)
	}
	if cfg.AdminUsername != DefaultAdminUsername {
		t.Errorf("AdminUsername = %v, want %v", cfg.AdminUsername, DefaultAdminUsername)
	}
	if cfg.AdminPassword != "" {
		t.Errorf("AdminPassword = %v, want empty", cfg.AdminPassword)
	}
	if cfg.AllowRegistration != false {
		t.Errorf("AllowRegistration = %v, want false", cfg.AllowRegistration)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RFBGO_PORT", "9000")
	t.Setenv("RFBGO_DB", "/data/app.db")
	t.Setenv("RFBGO_SESSION_IDLE_TIMEOUT", "60")
	t.Setenv("RFBGO_CONNECT_TIMEOUT", "20")
	t.Setenv("RFBGO_COMPRESSION_LEVEL", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %v, want 9000", cfg.Port)
	}
	if cfg.DB != "/data/app.db" {
		t.Errorf("DB = %v, want /data/app.db", cfg.DB)
	}
	if cfg.SessionIdleTimeout != 60*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 60m", cfg.SessionIdleTimeout)
	}
	if cfg.ConnectTimeout != 20*time.Second {
		t.Errorf("ConnectTimeout = %v, want 20s", cfg.ConnectTimeout)
	}
	if cfg.CompressionLevel != 3 {
		t.Errorf("CompressionLevel = %v, want 3", cfg.CompressionLevel)
	}
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RFBGO_PORT", "3000")
	t.Setenv("RFBGO_DB", "/tmp/test.db")
	t.Setenv("RFBGO_TLS_CERT_FILE", "/tmp/cert.pem")
	t.Setenv("RFBGO_TLS_KEY_FILE", "/tmp/key.pem")
	t.Setenv("RFBGO_CONNECT_TIMEOUT", "15")
	t.Setenv("RFBGO_COMPRESSION_LEVEL", "9")
	t.Setenv("RFBGO_QUALITY_LEVEL", "2")
	t.Setenv("RFBGO_SESSION_IDLE_TIMEOUT", "30")
	t.Setenv("RFBGO_SESSION_CLEANUP_INTERVAL", "10")
	t.Setenv("RFBGO_JWT_SECRET", "my-secret-key")
	t.Setenv("RFBGO_JWT_ACCESS_EXPIRY", "30")
	t.Setenv("RFBGO_JWT_REFRESH_EXPIRY", "48")
	t.Setenv("RFBGO_ADMIN_USERNAME", "superadmin")
	t.Setenv("RFBGO_ADMIN_PASSWORD", "s3cret")
	t.Setenv("RFBGO_ALLOW_REGISTRATION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %v, want 3000", cfg.Port)
	}
	if cfg.DB != "/tmp/test.db" {
		t.Errorf("DB = %v, want /tmp/test.db", cfg.DB)
	}
	if cfg.TLSCertFile != "/tmp/cert.pem" {
		t.Errorf("TLSCertFile = %v, want /tmp/cert.pem", cfg.TLSCertFile)
	}
	if cfg.TLSKeyFile != "/tmp/key.pem" {
		t.Errorf("TLSKeyFile = %v, want /tmp/key.pem", cfg.TLSKeyFile)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v, want 15s", cfg.ConnectTimeout)
	}
	if cfg.CompressionLevel != 9 {
		t.Errorf("CompressionLevel = %v, want 9", cfg.CompressionLevel)
	}
	if cfg.QualityLevel != 2 {
		t.Errorf("QualityLevel = %v, want 2", cfg.QualityLevel)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("SessionIdleTimeout = %v, want 30m", cfg.SessionIdleTimeout)
	}
	if cfg.SessionCleanupInterval != 10*time.Minute {
		t.Errorf("SessionCleanupInterval = %v, want 10m", cfg.SessionCleanupInterval)
	}
	if cfg.JWTSecret != "my-secret-key" {
		t.Errorf("JWTSecret = %v, want my-secret-key", cfg.JWTSecret)
	}
	if cfg.JWTAccessExpiry != 30*time.Minute {
		t.Errorf("JWTAccessExpiry = %v, want 30m", cfg.JWTAccessExpiry)
	}
	if cfg.JWTRefreshExpiry != 48*time.Hour {
		t.Errorf("JWTRefreshExpiry = %v, want 48h", cfg.JWTRefreshExpiry)
	}
	if cfg.AdminUsername != "superadmin" {
		t.Errorf("AdminUsername = %v, want superadmin", cfg.AdminUsername)
	}
	if cfg.AdminPassword != "s3cret" {
		t.Errorf("AdminPassword = %v, want s3cret", cfg.AdminPassword)
	}
	if cfg.AllowRegistration != true {
		t.Errorf("AllowRegistration = %v, want true", cfg.AllowRegistration)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("RFBGO_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid port")
	}
}

func TestLoad_InvalidCompressionLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "abc"},
		{"negative", "-1"},
		{"too high", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_COMPRESSION_LEVEL", tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for compression level %q", tt.value)
			}
		})
	}
}

func TestLoad_InvalidSessionCleanupInterval(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "abc"},
		{"negative", "-1"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_SESSION_CLEANUP_INTERVAL", tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for session cleanup interval %q", tt.value)
			}
		})
	}
}

func TestLoad_InvalidConnectTimeout(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "xyz"},
		{"negative", "-10"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_CONNECT_TIMEOUT", tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for connect timeout %q", tt.value)
			}
		})
	}
}

func TestLoad_InvalidSessionIdleTimeout_NonNumeric(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("RFBGO_SESSION_IDLE_TIMEOUT", "abc")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for non-numeric session idle timeout")
	}
}

func TestLoad_InvalidSessionIdleTimeout_Zero(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("RFBGO_SESSION_IDLE_TIMEOUT", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for zero session idle timeout")
	}
}

func TestLoad_InvalidJWTAccessExpiry(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "abc"},
		{"negative", "-5"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_JWT_ACCESS_EXPIRY", tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for JWT access expiry %q", tt.value)
			}
		})
	}
}

func TestLoad_InvalidJWTRefreshExpiry(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "abc"},
		{"negative", "-1"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_JWT_REFRESH_EXPIRY", tt.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error for JWT refresh expiry %q", tt.value)
			}
		})
	}
}

func TestLoad_AllowRegistrationParsing(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"true lowercase", "true", true},
		{"TRUE uppercase", "TRUE", true},
		{"True mixed", "True", true},
		{"1", "1", true},
		{"false", "false", false},
		{"0", "0", false},
		{"empty-like", "no", false},
		{"random", "yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv("RFBGO_ALLOW_REGISTRATION", tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.AllowRegistration != tt.want {
				t.Errorf("AllowRegistration = %v, want %v for input %q", cfg.AllowRegistration, tt.want, tt.value)
			}
		})
	}
}

func TestLoad_MultipleParseErrors(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("RFBGO_PORT", "invalid")
	t.Setenv("RFBGO_SESSION_IDLE_TIMEOUT", "bad")
	t.Setenv("RFBGO_JWT_ACCESS_EXPIRY", "nope")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for multiple invalid values")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "RFBGO_PORT") {
		t.Errorf("error should mention RFBGO_PORT: %s", errStr)
	}
	if !strings.Contains(errStr, "RFBGO_SESSION_IDLE_TIMEOUT") {
		t.Errorf("error should mention RFBGO_SESSION_IDLE_TIMEOUT: %s", errStr)
	}
	if !strings.Contains(errStr, "RFBGO_JWT_ACCESS_EXPIRY") {
		t.Errorf("error should mention RFBGO_JWT_ACCESS_EXPIRY: %s", errStr)
	}
}

func TestValidate_PortRange(t *testing.T) {
	tests := []struct {
		port    int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{8080, false},
		{65535, false},
		{65536, true},
		{-1, true},
	}

	for _, tt := range tests {
		cfg := &Config{
			Port:             tt.port,
			DB:               "test.db",
			CompressionLevel: 6,
			QualityLevel:     6,
		}

		errs := cfg.Validate()
		gotErr := len(errs) > 0

		if gotErr != tt.wantErr {
			t.Errorf("Validate() port=%d, gotErr=%v, wantErr=%v", tt.port, gotErr, tt.wantErr)
		}
	}
}

func TestValidate_EmptyDB(t *testing.T) {
	cfg := &Config{
		Port:             8080,
		DB:               "",
		CompressionLevel: 6,
		QualityLevel:     6,
	}

	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Error("Validate() expected error for empty DB")
	}

	found := false
	for _, e := range errs {
		if e.Field == "RFBGO_DB" {
			found = true
			break
		}
	}
	if !found {
		t.Error("Validate() expected RFBGO_DB in validation errors")
	}
}

func TestValidate_TLSCertKeyMustBePaired(t *testing.T) {
	tests := []struct {
		name     string
		cert     string
		key      string
		wantErr  bool
	}{
		{"both empty", "", "", false},
		{"both set", "cert.pem", "key.pem", false},
		{"cert only", "cert.pem", "", true},
		{"key only", "", "key.pem", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Port:             8080,
				DB:               "test.db",
				CompressionLevel: 6,
				QualityLevel:     6,
				TLSCertFile:      tt.cert,
				TLSKeyFile:       tt.key,
			}
			errs := cfg.Validate()
			gotErr := len(errs) > 0
			if gotErr != tt.wantErr {
				t.Errorf("Validate() cert=%q key=%q gotErr=%v, wantErr=%v", tt.cert, tt.key, gotErr, tt.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Port:             0,
		DB:               "",
		CompressionLevel: -1,
		QualityLevel:     99,
	}

	errs := cfg.Validate()
	if len(errs) < 4 {
		t.Errorf("Validate() expected at least 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestLoadWithFlags(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("RFBGO_PORT", "8000")

	cfg, err := LoadWithFlags(9000, "/custom/path.db")
	if err != nil {
		t.Fatalf("LoadWithFlags() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %v, want 9000 (flag should override env)", cfg.Port)
	}
	if cfg.DB != "/custom/path.db" {
		t.Errorf("DB = %v, want /custom/path.db", cfg.DB)
	}
}

func TestLoadWithFlags_DefaultsDoNotOverride(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("RFBGO_PORT", "9000")
	t.Setenv("RFBGO_DB", "/data/custom.db")

	cfg, err := LoadWithFlags(0, "")
	if err != nil {
		t.Fatalf("LoadWithFlags() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %v, want 9000 (zero flag should not override env)", cfg.Port)
	}
	if cfg.DB != "/data/custom.db" {
		t.Errorf("DB = %v, want /data/custom.db (empty flag should not override env)", cfg.DB)
	}
}

func TestLoadWithFlags_InvalidOverrideCausesValidationError(t *testing.T) {
	clearEnvVars(t)

	_, err := LoadWithFlags(99999, "")
	if err == nil {
		t.Fatal("LoadWithFlags() expected error for out-of-range port override")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "TEST_FIELD", Message: "something went wrong"}
	got := err.Error()
	want := "TEST_FIELD: something went wrong"
	if got != want {
		t.Errorf("ValidationError.Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_String(t *testing.T) {
	errs := ValidationErrors{
		{Field: "FIELD1", Message: "error 1"},
		{Field: "FIELD2", Message: "error 2"},
	}

	s := errs.Error()
	if s == "" {
		t.Error("ValidationErrors.Error() returned empty string")
	}
	if !strings.Contains(s, "FIELD1") || !strings.Contains(s, "error 1") {
		t.Errorf("ValidationErrors.Error() missing first error: %s", s)
	}
	if !strings.Contains(s, "FIELD2") || !strings.Contains(s, "error 2") {
		t.Errorf("ValidationErrors.Error() missing second error: %s", s)
	}
	if !strings.Contains(s, "configuration errors:") {
		t.Errorf("ValidationErrors.Error() missing prefix: %s", s)
	}
}

func TestValidationErrors_Empty(t *testing.T) {
	errs := ValidationErrors{}
	s := errs.Error()
	if s != "" {
		t.Errorf("ValidationErrors.Error() for empty = %q, want empty string", s)
	}
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"RFBGO_PORT",
		"RFBGO_DB",
		"RFBGO_TLS_CERT_FILE",
		"RFBGO_TLS_KEY_FILE",
		"RFBGO_CONNECT_TIMEOUT",
		"RFBGO_COMPRESSION_LEVEL",
		"RFBGO_QUALITY_LEVEL",
		"RFBGO_SESSION_IDLE_TIMEOUT",
		"RFBGO_SESSION_CLEANUP_INTERVAL",
		"RFBGO_JWT_SECRET",
		"RFBGO_JWT_ACCESS_EXPIRY",
		"RFBGO_JWT_REFRESH_EXPIRY",
		"RFBGO_ADMIN_USERNAME",
		"RFBGO_ADMIN_PASSWORD",
		"RFBGO_ALLOW_REGISTRATION",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}
