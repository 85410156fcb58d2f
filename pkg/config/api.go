package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment   string
	LogLevel      string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	SecretKey           string
	AccessTokenTTL      time.Duration
	UserSalt            string
	APIKeyEncryptionKey string

	LLMProvider       string
	EmbeddingProvider string
	UserRepository    string

	OpenAIBaseURL        string
	OpenAIAPIKey         string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string
	HFBaseURL            string
	HFModelName          string
	HFAPIToken           string
	TavilyBaseURL        string

	MCPBaseURL      string
	ToolProviders   []string
	AgentMaxTurns   int
	PromptDir       string
	UpstreamTimeout time.Duration

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	TrustedProxies     []string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		LogLevel:      GetString("LOG_LEVEL", "info"),
		Addr:          GetString("API_ADDR", ":8000"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://llm:llm@db:5432/llm?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),

		SecretKey:           GetString("SECRET_KEY", "supersecuresecret"),
		AccessTokenTTL:      time.Duration(GetInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60)) * time.Minute,
		UserSalt:            GetString("USER_SALT", "changeme"),
		APIKeyEncryptionKey: GetString("API_KEY_ENCRYPTION_KEY", "supersecuresecret"),

		LLMProvider:       GetString("LLM_PROVIDER", "openai"),
		EmbeddingProvider: GetString("EMBEDDING_PROVIDER", "openai"),
		UserRepository:    GetString("USER_REPOSITORY", "postgres"),

		OpenAIBaseURL:        GetString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:         GetString("OPENAI_API_KEY", ""),
		OpenAIChatModel:      GetString("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: GetString("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		HFBaseURL:            GetString("HF_BASE_URL", "https://api-inference.huggingface.co"),
		HFModelName:          GetString("HF_MODEL_NAME", "gpt2"),
		HFAPIToken:           GetString("HF_API_TOKEN", ""),
		TavilyBaseURL:        GetString("TAVILY_BASE_URL", "https://api.tavily.com"),

		MCPBaseURL:      GetString("MCP_BASE_URL", "http://localhost:8080"),
		ToolProviders:   GetList("TOOL_PROVIDERS", []string{"calculator"}),
		AgentMaxTurns:   GetInt("AGENT_MAX_TURNS", 10),
		PromptDir:       GetString("PROMPT_DIR", ""),
		UpstreamTimeout: time.Duration(GetInt("UPSTREAM_TIMEOUT_SECONDS", 120)) * time.Second,

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		TrustedProxies:     GetList("TRUSTED_PROXIES", nil),

		BootstrapAdminEmail:    GetString("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: GetString("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
}
