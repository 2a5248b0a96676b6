package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"dashboard-api/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort  string
	GinMode     string
	Environment string

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Transport Security
	HTTPSOnly         bool
	HTTPSRedirect     bool
	HTTPSRedirectHost string // host canônico do redirect; o Host da requisição não é usado
	TrustedProxies    []string

	// Rate Limit Storage
	StorageType   string // memory, redis ou auto
	APIReplicas   int    // instâncias que compartilham as cotas
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Data Layer
	DatabaseDriver string
	DatabaseURL    string
	DatabaseSeed   bool

	// Authentication
	JWTSecret    string
	JWTPublicKey string
	JWTIssuer    string
	JWTAudience  string
	AdminUserIDs []string

	// Rate Limiting Configuration
	UserRateLimit    int
	UserIPRateLimit  int
	AdminRateLimit   int
	AdminIPRateLimit int
	RateWindow       int // em segundos

	// CORS
	CORSUserOrigins  []string
	CORSAdminOrigins []string

	// Policy presets file (YAML)
	SecurityConfigFile string
}

// Drivers aceitos para a camada de dados
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
)

// ConfigLoader carrega as configurações do ambiente e do arquivo de presets
type ConfigLoader struct {
	config *Config
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig carrega as configurações do .env e do ambiente
func (c *ConfigLoader) LoadConfig() (*Config, error) {
	// Carrega o arquivo .env se existir
	if err := godotenv.Load(); err != nil {
		// Se não encontrar .env, continua com variáveis do sistema
		fmt.Println("Warning: .env file not found, using system environment variables")
	}

	config, err := c.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	c.config = config
	return config, nil
}

// GetConfig retorna a configuração atual
func (c *ConfigLoader) GetConfig() *Config {
	return c.config
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (c *ConfigLoader) loadFromEnv() (*Config, error) {
	environment := getEnvWithDefault("APP_ENV", "development")

	config := &Config{
		// Server defaults
		ServerPort:  getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:     getEnvWithDefault("GIN_MODE", "debug"),
		Environment: environment,

		// Logging defaults
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),

		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),

		// Redis defaults
		StorageType:   getEnvWithDefault("STORAGE_TYPE", "auto"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvWithDefault("REDIS_PASSWORD", ""),

		DatabaseDriver: strings.ToLower(getEnvWithDefault("DATABASE_DRIVER", DatabaseMemory)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		JWTSecret:    os.Getenv("AUTH_JWT_SECRET"),
		JWTPublicKey: os.Getenv("AUTH_JWT_PUBLIC_KEY"),
		JWTIssuer:    os.Getenv("AUTH_JWT_ISSUER"),
		JWTAudience:  os.Getenv("AUTH_JWT_AUDIENCE"),
		AdminUserIDs: splitList(os.Getenv("ADMIN_USER_IDS")),

		CORSUserOrigins:  splitList(getEnvWithDefault("CORS_USER_ORIGINS", "http://localhost:4321")),
		CORSAdminOrigins: splitList(getEnvWithDefault("CORS_ADMIN_ORIGINS", "http://localhost:4321")),

		SecurityConfigFile: os.Getenv("SECURITY_CONFIG_FILE"),
		HTTPSRedirectHost:  strings.TrimSpace(os.Getenv("HTTPS_REDIRECT_HOST")),
	}

	var err error

	// HTTPS é obrigatório em produção salvo configuração explícita
	if config.HTTPSOnly, err = parseBool("HTTPS_ONLY", environment == "production"); err != nil {
		return nil, err
	}
	if config.HTTPSRedirect, err = parseBool("HTTPS_REDIRECT", false); err != nil {
		return nil, err
	}
	if config.DatabaseSeed, err = parseBool("DATABASE_SEED", false); err != nil {
		return nil, err
	}

	ints := []struct {
		key      string
		fallback string
		target   *int
	}{
		{"REDIS_DB", "0", &config.RedisDB},
		{"API_REPLICAS", "1", &config.APIReplicas},
		{"USER_RATE_LIMIT", "100", &config.UserRateLimit},
		{"USER_IP_RATE_LIMIT", "200", &config.UserIPRateLimit},
		{"ADMIN_RATE_LIMIT", "30", &config.AdminRateLimit},
		{"ADMIN_IP_RATE_LIMIT", "60", &config.AdminIPRateLimit},
		{"RATE_WINDOW", "60", &config.RateWindow},
	}
	for _, item := range ints {
		value, err := strconv.Atoi(getEnvWithDefault(item.key, item.fallback))
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", item.key, err)
		}
		*item.target = value
	}

	// Valida configurações obrigatórias
	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateConfig valida se as configurações são válidas
func (c *ConfigLoader) validateConfig(config *Config) error {
	limits := map[string]int{
		"USER_RATE_LIMIT":     config.UserRateLimit,
		"USER_IP_RATE_LIMIT":  config.UserIPRateLimit,
		"ADMIN_RATE_LIMIT":    config.AdminRateLimit,
		"ADMIN_IP_RATE_LIMIT": config.AdminIPRateLimit,
		"RATE_WINDOW":         config.RateWindow,
	}
	for key, value := range limits {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than 0", key)
		}
	}

	if config.APIReplicas < 1 {
		return fmt.Errorf("API_REPLICAS must be at least 1")
	}

	if config.HTTPSRedirect {
		if config.HTTPSRedirectHost == "" {
			return fmt.Errorf("HTTPS_REDIRECT_HOST is required when HTTPS_REDIRECT is enabled")
		}
		if strings.ContainsAny(config.HTTPSRedirectHost, "/?#@ \\") {
			return fmt.Errorf("HTTPS_REDIRECT_HOST must be a bare host[:port], got %q", config.HTTPSRedirectHost)
		}
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	switch config.DatabaseDriver {
	case DatabaseMemory:
	case DatabasePostgres:
		if config.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be 'memory' or 'postgres'")
	}

	if config.JWTSecret == "" && config.JWTPublicKey == "" {
		return fmt.Errorf("AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY is required")
	}

	return nil
}

// LimitSpec descreve um limite no arquivo de presets; max 0 desativa o limite
type LimitSpec struct {
	Max           int `yaml:"max"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// PolicyPreset sobrescreve campos de um preset; campos ausentes mantêm o valor do ambiente
type PolicyPreset struct {
	Auth          *string    `yaml:"auth"`
	AdminOnly     *bool      `yaml:"adminOnly"`
	UserRateLimit *LimitSpec `yaml:"userRateLimit"`
	IPRateLimit   *LimitSpec `yaml:"ipRateLimit"`
	Origins       []string   `yaml:"origins"`
	HTTPSOnly     *bool      `yaml:"httpsOnly"`
}

// PresetsFile representa a estrutura do arquivo de presets
type PresetsFile struct {
	Presets map[string]PolicyPreset `yaml:"presets"`
}

// LoadPolicyPresets lê o arquivo YAML de presets; arquivo ausente não é erro e gera um aviso no log
func LoadPolicyPresets(path string, log domain.Logger) (map[string]PolicyPreset, error) {
	if path == "" {
		return map[string]PolicyPreset{}, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if log != nil {
			log.Warn("Security config file not found, using environment presets", map[string]interface{}{
				"presets_file": path,
			})
		}
		return map[string]PolicyPreset{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read security config file: %w", err)
	}

	var file PresetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse security config file: %w", err)
	}

	for name := range file.Presets {
		switch name {
		case "user", "admin", "public":
		default:
			return nil, fmt.Errorf("unknown preset %q in security config file", name)
		}
	}

	if file.Presets == nil {
		file.Presets = map[string]PolicyPreset{}
	}
	return file.Presets, nil
}

// BuildPolicies monta os presets a partir do ambiente e do arquivo YAML
func BuildPolicies(config *Config, log domain.Logger) (domain.PolicySet, error) {
	window := config.RateWindow

	set := domain.PolicySet{
		User: domain.Policy{
			Name:           "user",
			Auth:           domain.AuthRequired,
			UserRateLimit:  domain.NewRateLimit(config.UserRateLimit, window),
			IPRateLimit:    domain.NewRateLimit(config.UserIPRateLimit, window),
			AllowedOrigins: domain.NewOriginList(config.CORSUserOrigins...),
			HTTPSOnly:      config.HTTPSOnly,
		},
		Admin: domain.Policy{
			Name:           "admin",
			Auth:           domain.AuthRequired,
			AdminOnly:      true,
			UserRateLimit:  domain.NewRateLimit(config.AdminRateLimit, window),
			IPRateLimit:    domain.NewRateLimit(config.AdminIPRateLimit, window),
			AllowedOrigins: domain.NewOriginList(config.CORSAdminOrigins...),
			HTTPSOnly:      config.HTTPSOnly,
		},
		Public: domain.Policy{
			Name:           "public",
			Auth:           domain.AuthNone,
			IPRateLimit:    domain.NewRateLimit(config.UserIPRateLimit, window),
			AllowedOrigins: domain.NewOriginList(domain.WildcardOrigin),
		},
	}

	presets, err := LoadPolicyPresets(config.SecurityConfigFile, log)
	if err != nil {
		return domain.PolicySet{}, err
	}

	targets := map[string]*domain.Policy{"user": &set.User, "admin": &set.Admin, "public": &set.Public}
	for name, preset := range presets {
		if err := applyPreset(targets[name], preset); err != nil {
			return domain.PolicySet{}, fmt.Errorf("preset %s: %w", name, err)
		}
	}

	// cada preset conta em seu próprio bucket
	set.User = set.User.WithBucket("user")
	set.Admin = set.Admin.WithBucket("admin")
	set.Public = set.Public.WithBucket("public")

	for _, policy := range []domain.Policy{set.User, set.Admin, set.Public} {
		if err := policy.Validate(); err != nil {
			return domain.PolicySet{}, err
		}
	}

	return set, nil
}

// applyPreset aplica os campos presentes do preset sobre a política
func applyPreset(policy *domain.Policy, preset PolicyPreset) error {
	if preset.Auth != nil {
		auth := domain.AuthRequirement(strings.ToLower(*preset.Auth))
		switch auth {
		case domain.AuthNone, domain.AuthOptional, domain.AuthRequired:
			policy.Auth = auth
		default:
			return fmt.Errorf("unknown auth requirement %q", *preset.Auth)
		}
	}
	if preset.AdminOnly != nil {
		policy.AdminOnly = *preset.AdminOnly
	}
	if preset.UserRateLimit != nil {
		policy.UserRateLimit = preset.UserRateLimit.toRateLimit()
	}
	if preset.IPRateLimit != nil {
		policy.IPRateLimit = preset.IPRateLimit.toRateLimit()
	}
	if preset.Origins != nil {
		policy.AllowedOrigins = domain.NewOriginList(preset.Origins...)
	}
	if preset.HTTPSOnly != nil {
		policy.HTTPSOnly = *preset.HTTPSOnly
	}
	return nil
}

func (l *LimitSpec) toRateLimit() *domain.RateLimit {
	if l.Max == 0 {
		return nil
	}
	return domain.NewRateLimit(l.Max, l.WindowSeconds)
}

// parseBool lê uma flag booleana do ambiente
func parseBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

// splitList separa listas separadas por vírgula ignorando itens vazios
func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
