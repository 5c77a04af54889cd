package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ReportAgentName is the A2A agent name advertised by `sprintreport agent`.
	ReportAgentName = "SprintReportAgent"
	// DefaultMCPImage is the pinned mcp-atlassian image the bridge launches.
	DefaultMCPImage = "ghcr.io/sooperset/mcp-atlassian:0.11.9"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort  int
	ServerHost  string
	// WebhookPort serves Jira sprint webhooks; 0 disables the endpoint
	WebhookPort int

	// Agent configuration
	AgentName    string
	AgentVersion string
	AgentURL     string

	// Authentication
	AuthType  string // "jwt" or "apikey"
	JWTSecret string
	APIKey    string

	// Jira configuration
	JiraBaseURL     string
	JiraUsername    string
	JiraAPIToken    string
	JiraBoardID     int
	JiraRESTEnrich  bool // enrich placeholder sprints through the Agile REST API
	JiraMCPImage    string
	DockerPath      string
	JiraSprintLimit int

	// MCP bridge timeouts
	MCPCallTimeout      time.Duration
	MCPHandshakeTimeout time.Duration
	MCPHealthTimeout    time.Duration
	MCPDrainTimeout     time.Duration
	MCPStopGrace        time.Duration
	MCPFailureThreshold int

	// Fathom configuration
	FathomAPIKey      string
	FathomBaseURL     string
	FathomSearchTerms []string
	FathomPaddingDays int

	// Report configuration
	TeamName         string
	GuidePath        string
	OutputDir        string
	PDFEnabled       bool
	BrowserURL       string
	LedgerPath       string
	BatchConcurrency int

	// LLM configuration
	LLMProvider    string // "openai", "azure", "anthropic"
	LLMModel       string
	LLMAPIKey      string
	LLMServiceURL  string
	LLMMaxTokens   int
	LLMTimeout     int // in seconds
	LLMTemperature float64

	// Logging
	LogLevel string
}

var (
	v    *viper.Viper
	once sync.Once
)

// init loads environment variables from .env file
func init() {
	// Try to load from project root first
	err := godotenv.Load()
	if err != nil {
		// Try loading from parent directory (assuming we're in a subdirectory)
		err = godotenv.Load("../.env")
		if err != nil {
			err = godotenv.Load("../../.env")
			if err != nil {
				log.Println("No .env file found or error loading it. Using environment variables or defaults.")
			}
		}
	}
}

// GetViper returns the shared viper instance, creating it with defaults on first use.
func GetViper() *viper.Viper {
	once.Do(func() {
		v = newViper()
	})
	return v
}

func newViper() *viper.Viper {
	vp := viper.New()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	setDefaults(vp)

	// Legacy variable names used by existing deployments.
	_ = vp.BindEnv("jira.url", "JIRA_URL", "JIRA_BASE_URL")
	_ = vp.BindEnv("llm.api_key", "LLM_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY")
	return vp
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("server.port", 8080)
	vp.SetDefault("server.host", "localhost")
	vp.SetDefault("server.webhook_port", 8083)

	vp.SetDefault("agent_name", ReportAgentName)
	vp.SetDefault("agent.version", "1.0.0")
	vp.SetDefault("agent.url", "http://localhost:8080")

	vp.SetDefault("auth.type", "apikey")
	vp.SetDefault("auth.jwt_secret", "")
	vp.SetDefault("auth.api_key", "")

	vp.SetDefault("jira.url", "")
	vp.SetDefault("jira.username", "")
	vp.SetDefault("jira.api_token", "")
	vp.SetDefault("jira.board_id", 0)
	vp.SetDefault("jira.rest_enrich", false)
	vp.SetDefault("jira.mcp_image", DefaultMCPImage)
	vp.SetDefault("jira.docker_path", "docker")
	vp.SetDefault("jira.sprint_limit", 10)

	vp.SetDefault("mcp.call_timeout", 60*time.Second)
	vp.SetDefault("mcp.handshake_timeout", 30*time.Second)
	vp.SetDefault("mcp.health_timeout", 5*time.Second)
	vp.SetDefault("mcp.drain_timeout", 500*time.Millisecond)
	vp.SetDefault("mcp.stop_grace", 5*time.Second)
	vp.SetDefault("mcp.failure_threshold", 2)

	vp.SetDefault("fathom.api_key", "")
	vp.SetDefault("fathom.base_url", "https://api.fathom.ai/external/v1")
	vp.SetDefault("fathom.search_terms", []string{})
	vp.SetDefault("fathom.padding_days", 1)

	vp.SetDefault("report.team_name", "Engineering")
	vp.SetDefault("report.guide_path", "docs/sprint_report_guide.md")
	vp.SetDefault("report.output_dir", "reports")
	vp.SetDefault("report.pdf", false)
	vp.SetDefault("report.browser_url", "")
	vp.SetDefault("report.ledger_path", "reports/runs.db")
	vp.SetDefault("report.batch_concurrency", 2)

	vp.SetDefault("llm.provider", "anthropic")
	vp.SetDefault("llm.model", "claude-sonnet-4-20250514")
	vp.SetDefault("llm.api_key", "")
	vp.SetDefault("llm.service_url", "")
	vp.SetDefault("llm.max_tokens", 4000)
	vp.SetDefault("llm.timeout", 120)
	vp.SetDefault("llm.temperature", 0.3)

	vp.SetDefault("log.level", "info")
}

// Load reads the optional config file at path (empty means ./config.yaml if present)
// and returns the resulting configuration.
func Load(path string) (*Config, error) {
	vp := GetViper()
	if path != "" {
		vp.SetConfigFile(path)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
	}

	if err := vp.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return NewConfig(), nil
}

// NewConfig creates a new configuration from the shared viper instance
func NewConfig() *Config {
	return fromViper(GetViper())
}

func fromViper(vp *viper.Viper) *Config {
	return &Config{
		// Server configuration
		ServerPort:  vp.GetInt("server.port"),
		ServerHost:  vp.GetString("server.host"),
		WebhookPort: vp.GetInt("server.webhook_port"),

		// Agent configuration
		AgentName:    vp.GetString("agent_name"),
		AgentVersion: vp.GetString("agent.version"),
		AgentURL:     vp.GetString("agent.url"),

		// Authentication
		AuthType:  vp.GetString("auth.type"),
		JWTSecret: vp.GetString("auth.jwt_secret"),
		APIKey:    vp.GetString("auth.api_key"),

		// Jira configuration
		JiraBaseURL:     strings.TrimRight(vp.GetString("jira.url"), "/"),
		JiraUsername:    vp.GetString("jira.username"),
		JiraAPIToken:    vp.GetString("jira.api_token"),
		JiraBoardID:     vp.GetInt("jira.board_id"),
		JiraRESTEnrich:  vp.GetBool("jira.rest_enrich"),
		JiraMCPImage:    vp.GetString("jira.mcp_image"),
		DockerPath:      vp.GetString("jira.docker_path"),
		JiraSprintLimit: vp.GetInt("jira.sprint_limit"),

		MCPCallTimeout:      vp.GetDuration("mcp.call_timeout"),
		MCPHandshakeTimeout: vp.GetDuration("mcp.handshake_timeout"),
		MCPHealthTimeout:    vp.GetDuration("mcp.health_timeout"),
		MCPDrainTimeout:     vp.GetDuration("mcp.drain_timeout"),
		MCPStopGrace:        vp.GetDuration("mcp.stop_grace"),
		MCPFailureThreshold: vp.GetInt("mcp.failure_threshold"),

		// Fathom configuration
		FathomAPIKey:      vp.GetString("fathom.api_key"),
		FathomBaseURL:     vp.GetString("fathom.base_url"),
		FathomSearchTerms: vp.GetStringSlice("fathom.search_terms"),
		FathomPaddingDays: vp.GetInt("fathom.padding_days"),

		// Report configuration
		TeamName:         vp.GetString("report.team_name"),
		GuidePath:        vp.GetString("report.guide_path"),
		OutputDir:        vp.GetString("report.output_dir"),
		PDFEnabled:       vp.GetBool("report.pdf"),
		BrowserURL:       vp.GetString("report.browser_url"),
		LedgerPath:       vp.GetString("report.ledger_path"),
		BatchConcurrency: vp.GetInt("report.batch_concurrency"),

		// LLM configuration
		LLMProvider:    vp.GetString("llm.provider"),
		LLMModel:       vp.GetString("llm.model"),
		LLMAPIKey:      vp.GetString("llm.api_key"),
		LLMServiceURL:  vp.GetString("llm.service_url"),
		LLMMaxTokens:   vp.GetInt("llm.max_tokens"),
		LLMTimeout:     vp.GetInt("llm.timeout"),
		LLMTemperature: vp.GetFloat64("llm.temperature"),

		LogLevel: vp.GetString("log.level"),
	}
}

// Validate returns a list of human-readable problems; an empty list means the
// configuration is usable for report generation.
func (c *Config) Validate() []string {
	var problems []string
	if c.JiraBaseURL == "" {
		problems = append(problems, "JIRA_URL is not set")
	} else if !strings.HasPrefix(c.JiraBaseURL, "http://") && !strings.HasPrefix(c.JiraBaseURL, "https://") {
		problems = append(problems, "JIRA_URL must be an http(s) URL")
	}
	if c.JiraUsername == "" {
		problems = append(problems, "JIRA_USERNAME is not set")
	}
	if c.JiraAPIToken == "" {
		problems = append(problems, "JIRA_API_TOKEN is not set")
	}
	if c.LLMAPIKey == "" {
		problems = append(problems, "LLM_API_KEY is not set")
	}
	if c.MCPFailureThreshold < 1 {
		problems = append(problems, "mcp.failure_threshold must be at least 1")
	}
	if c.BatchConcurrency < 1 {
		problems = append(problems, "report.batch_concurrency must be at least 1")
	}
	return problems
}
