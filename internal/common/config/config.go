// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Auth          AuthConfig              `mapstructure:"auth"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Decision      DecisionConfig          `mapstructure:"decision"`
	Wizard        WizardConfig            `mapstructure:"wizard"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`

	// ActivityRegistry is the path of the task catalogue checked at startup.
	ActivityRegistry string `mapstructure:"activity_registry"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ElasticsearchConfig is optional. With no addresses decisions are not indexed.
type ElasticsearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	DecisionIndex string   `mapstructure:"decision_index"`
}

// Enabled reports whether an Elasticsearch cluster is configured.
func (e ElasticsearchConfig) Enabled() bool {
	return len(e.Addresses) > 0
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling

	// FailOnError makes workers that normally complete with a failure marker
	// fail the job instead.
	FailOnError bool `mapstructure:"fail_on_error"`
}

// --- Specific Configuration Sections ---

// AuthConfig holds the identity provider used for the verification step.
type AuthConfig struct {
	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"genai"`

	Extraction struct {
		BaseURL string `mapstructure:"base_url"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"extraction"`
}

// Decision strategies.
const (
	StrategyDelegated = "delegated"
	StrategyHeuristic = "heuristic"
)

// DecisionConfig holds the eligibility thresholds and the approval strategy.
type DecisionConfig struct {
	Strategy              string `mapstructure:"strategy"`
	IncomeFloor           int64  `mapstructure:"income_floor"`
	MaxLoanToIncomeRatio  int64  `mapstructure:"max_loan_to_income_ratio"`
	MinDocuments          int    `mapstructure:"min_documents"`
	FallbackMonthlyIncome int64  `mapstructure:"fallback_monthly_income"` // 0 disables the fallback
	CreditScoreFloor      int    `mapstructure:"credit_score_floor"`
	CreditPrecheckEnabled *bool  `mapstructure:"credit_precheck_enabled"`
	AssessmentTimeout     int    `mapstructure:"assessment_timeout_ms"` // milliseconds
	AssessmentMaxRetries  int    `mapstructure:"assessment_max_retries"`
}

// PrecheckEnabled reports whether the credit-score floor guards delegated assessment.
func (d DecisionConfig) PrecheckEnabled() bool {
	return d.CreditPrecheckEnabled == nil || *d.CreditPrecheckEnabled
}

// Identity verification modes.
const (
	IdentityModeKeycloak  = "keycloak"
	IdentityModeSimulated = "simulated"
)

// WizardConfig holds session level settings.
type WizardConfig struct {
	SessionTTL                   time.Duration `mapstructure:"session_ttl"`
	IdentityMode                 string        `mapstructure:"identity_mode"`
	SimulatedVerificationDelayMS int           `mapstructure:"simulated_verification_delay_ms"`
}

// NotificationConfig holds settings for the notify-loan-decision worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
