package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		file    *string
		want    string
		wantErr bool
	}{
		{name: "env only", env: "env-value", want: "env-value"},
		{name: "file only", file: strPtr("file-value\n"), want: "file-value"},
		{name: "file wins over env", env: "env-value", file: strPtr("file-value"), want: "file-value"},
		{name: "neither set", want: ""},
		{name: "trims whitespace", file: strPtr("  secret-value  \n\n"), want: "secret-value"},
		{name: "empty file", env: "env-value", file: strPtr(""), want: ""},
	}

	const envName = "TEST_RENDERER_SECRET"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envName, tt.env)
			t.Setenv(envName+"_FILE", "")
			if tt.file != nil {
				t.Setenv(envName+"_FILE", writeSecret(t, *tt.file))
			}

			got, err := ResolveSecret(envName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSecret_FileNotFound(t *testing.T) {
	t.Setenv("TEST_RENDERER_SECRET_MISSING_FILE", "/nonexistent/path/to/secret")

	if _, err := ResolveSecret("TEST_RENDERER_SECRET_MISSING"); err == nil {
		t.Error("expected error when file does not exist")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvAdminUser, "admin")
	t.Setenv(EnvAdminPass+"_FILE", writeSecret(t, "s3cret\n"))
	t.Setenv(EnvOperatorUser, "")
	t.Setenv(EnvOperatorPass, "")
	t.Setenv(EnvJWTSecret, "signing-key")

	c, err := LoadCredentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.AdminUser != "admin" || c.AdminPass != "s3cret" || c.JWTSecret != "signing-key" {
		t.Errorf("unexpected credentials %+v", c)
	}
	if c.OperatorUser != "" || c.OperatorPass != "" {
		t.Errorf("expected empty operator credentials, got %+v", c)
	}

	t.Setenv(EnvJWTSecret+"_FILE", "/nonexistent/jwt")
	if _, err := LoadCredentials(); err == nil {
		t.Error("expected error for unreadable secret file")
	}
}

func strPtr(s string) *string { return &s }
