package config

import "os"

// Environment variable names for overrides. Secrets are accepted from the
// environment so they can stay out of the config file.
const (
	EnvConfig             = "TAKVIM_CONFIG"
	EnvStateDB            = "TAKVIM_STATE_DB"
	EnvSessionSecret      = "TAKVIM_SESSION_SECRET"
	EnvGoogleClientID     = "TAKVIM_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "TAKVIM_GOOGLE_CLIENT_SECRET"
	EnvOpenAIAPIKey       = "TAKVIM_OPENAI_API_KEY"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath         string
	StateDB            string
	SessionSecret      string
	GoogleClientID     string
	GoogleClientSecret string
	OpenAIAPIKey       string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:         os.Getenv(EnvConfig),
		StateDB:            os.Getenv(EnvStateDB),
		SessionSecret:      os.Getenv(EnvSessionSecret),
		GoogleClientID:     os.Getenv(EnvGoogleClientID),
		GoogleClientSecret: os.Getenv(EnvGoogleClientSecret),
		OpenAIAPIKey:       os.Getenv(EnvOpenAIAPIKey),
	}
}
