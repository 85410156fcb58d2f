package config

import "time"

// CLIConfig holds settings for the ragctl client.
type CLIConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	AgentTimeout   time.Duration
}

// LoadCLIConfig constructs a CLIConfig from environment variables.
func LoadCLIConfig() CLIConfig {
	return CLIConfig{
		APIBaseURL:     GetString("API_BASE_URL", "http://localhost:8000"),
		RequestTimeout: time.Duration(GetInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		AgentTimeout:   time.Duration(GetInt("AGENT_TIMEOUT_SECONDS", 180)) * time.Second,
	}
}
