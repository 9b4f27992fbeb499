package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables holding secrets. Each also accepts a *_FILE variant.
const (
	EnvAdminUser    = "SENTIENT_ADMIN_USER"
	EnvAdminPass    = "SENTIENT_ADMIN_PASS"
	EnvOperatorUser = "SENTIENT_OPERATOR_USER"
	EnvOperatorPass = "SENTIENT_OPERATOR_PASS"
	EnvJWTSecret    = "SENTIENT_JWT_SECRET"
	EnvInfluxToken  = "SENTIENT_INFLUX_TOKEN"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
// Returns an error if the file cannot be read.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// Credentials are the API credentials and signing key.
type Credentials struct {
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
	JWTSecret    string
}

// LoadCredentials resolves all API secrets. Unset secrets stay empty.
func LoadCredentials() (*Credentials, error) {
	c := &Credentials{}
	targets := []struct {
		env string
		dst *string
	}{
		{EnvAdminUser, &c.AdminUser},
		{EnvAdminPass, &c.AdminPass},
		{EnvOperatorUser, &c.OperatorUser},
		{EnvOperatorPass, &c.OperatorPass},
		{EnvJWTSecret, &c.JWTSecret},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}
	return c, nil
}

// ResolveInfluxToken fills cfg.InfluxDB.Token from the environment.
func (c *RendererConfig) ResolveInfluxToken() error {
	token, err := ResolveSecret(EnvInfluxToken)
	if err != nil {
		return err
	}
	c.InfluxDB.Token = token
	return nil
}
