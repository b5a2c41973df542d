package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

// loadEnvDuration reads an integer amount of unit.
func loadEnvDuration(key string, unit time.Duration, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return
	}
	*result = time.Duration(n) * unit
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "database",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

type natsConfig struct {
	Host             string
	Port             uint
	Username         string
	Password         string
	JetStreamEnabled bool
	PortMonitoring   uint
}

func (c *natsConfig) loadFromEnv() {
	c.Host = getEnv("NATS_HOST", "localhost")

	// Load port with default 4222
	if portStr := getEnv("NATS_PORT", "4222"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = uint(port)
		} else {
			c.Port = 4222
		}
	} else {
		c.Port = 4222
	}

	c.Username = getEnv("NATS_USER", "")
	c.Password = getEnv("NATS_PASSWORD", "")

	// Load JetStream enabled flag
	if jsEnabled := getEnv("NATS_JETSTREAM_ENABLED", "true"); jsEnabled == "true" {
		c.JetStreamEnabled = true
	} else {
		c.JetStreamEnabled = false
	}

	// Load monitoring port
	if portMonitorStr := getEnv("NATS_PORT_MONITORING", "8222"); portMonitorStr != "" {
		if portMonitor, err := strconv.Atoi(portMonitorStr); err == nil {
			c.PortMonitoring = uint(portMonitor)
		} else {
			c.PortMonitoring = 8222
		}
	} else {
		c.PortMonitoring = 8222
	}
}

func (c *natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:             "localhost",
		Port:             4222,
		Username:         "",
		Password:         "",
		JetStreamEnabled: true,
		PortMonitoring:   8222,
	}
}

type securityConfig struct {
	BackendApiKey string
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", "")
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey: "",
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)

	// Load DB number with a default of 0
	if dbStr := getEnv("REDIS_DB", "0"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	log.Info().Str("host", r.Host).Uint("port", r.Port).Int("db", r.DB).Msg("Redis config loaded")
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
	// CapturePrefix is the object prefix of failure captures.
	CapturePrefix string
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
	loadEnvString("GCS_CAPTURE_PREFIX", &g.CapturePrefix)
}

// Enabled reports whether failure captures can be uploaded.
func (g GCSConfig) Enabled() bool {
	return g.Bucket != "" && g.CredentialsFile != ""
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
		CapturePrefix:   "captures",
	}
}

/* LLM Configuration */

type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

func (l *LLMConfig) loadFromEnv() {
	loadEnvString("LLM_BASE_URL", &l.BaseURL)
	loadEnvString("LLM_API_KEY", &l.APIKey)
	loadEnvString("LLM_MODEL", &l.Model)
	loadEnvDuration("LLM_TIMEOUT_SECONDS", time.Second, &l.Timeout)
	loadEnvInt("LLM_MAX_TOKENS", &l.MaxTokens)
}

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		Timeout:   60 * time.Second,
		MaxTokens: 4096,
	}
}

/* Browser Configuration */

type BrowserConfig struct {
	// ControlURL connects to a running Chrome instead of launching one.
	ControlURL string
	Headless   bool
	Bin        string
	NoSandbox  bool
	UserAgent  string
	NavTimeout time.Duration
	DelayMin   time.Duration
	DelayMax   time.Duration
	IdleTime   time.Duration
}

func (b *BrowserConfig) loadFromEnv() {
	loadEnvString("BROWSER_CONTROL_URL", &b.ControlURL)
	loadEnvBool("BROWSER_HEADLESS", &b.Headless)
	loadEnvString("BROWSER_BIN", &b.Bin)
	loadEnvBool("BROWSER_NO_SANDBOX", &b.NoSandbox)
	loadEnvString("BROWSER_USER_AGENT", &b.UserAgent)
	loadEnvDuration("BROWSER_NAV_TIMEOUT_SECONDS", time.Second, &b.NavTimeout)
	loadEnvDuration("BROWSER_DELAY_MIN_MS", time.Millisecond, &b.DelayMin)
	loadEnvDuration("BROWSER_DELAY_MAX_MS", time.Millisecond, &b.DelayMax)
	loadEnvDuration("BROWSER_IDLE_MS", time.Millisecond, &b.IdleTime)
}

func defaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:   true,
		NoSandbox:  true,
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		NavTimeout: 30 * time.Second,
		DelayMin:   1500 * time.Millisecond,
		DelayMax:   3000 * time.Millisecond,
		IdleTime:   500 * time.Millisecond,
	}
}

/* Crawl Configuration */

type CrawlConfig struct {
	MaxDepth           int
	MaxPerPattern      int
	MaxPaginationPages int
	ShowMoreMaxClicks  int
	RemoveOnEmpty      bool
	SessionConcurrency int
	SessionTimeout     time.Duration
	MaxRetries         int
	HeuristicsFile     string
}

func (c *CrawlConfig) loadFromEnv() {
	loadEnvInt("CRAWL_MAX_DEPTH", &c.MaxDepth)
	loadEnvInt("CRAWL_MAX_PER_PATTERN", &c.MaxPerPattern)
	loadEnvInt("CRAWL_MAX_PAGINATION_PAGES", &c.MaxPaginationPages)
	loadEnvInt("CRAWL_SHOW_MORE_MAX_CLICKS", &c.ShowMoreMaxClicks)
	loadEnvBool("CRAWL_REMOVE_ON_EMPTY", &c.RemoveOnEmpty)
	loadEnvInt("CRAWL_SESSION_CONCURRENCY", &c.SessionConcurrency)
	loadEnvDuration("CRAWL_SESSION_TIMEOUT_MINUTES", time.Minute, &c.SessionTimeout)
	loadEnvInt("CRAWL_MAX_RETRIES", &c.MaxRetries)
	loadEnvString("HEURISTICS_FILE", &c.HeuristicsFile)
}

func defaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxDepth:           1,
		MaxPerPattern:      5,
		MaxPaginationPages: 50,
		ShowMoreMaxClicks:  50,
		RemoveOnEmpty:      false,
		SessionConcurrency: 2,
		SessionTimeout:     90 * time.Minute,
		MaxRetries:         2,
	}
}

/* Worker Configuration */

type WorkerMode string

const (
	ModeAnalyser WorkerMode = "analyser"
	ModeChecker  WorkerMode = "checker"
)

type workerConfig struct {
	Mode WorkerMode
}

func (w *workerConfig) loadFromEnv() {
	mode := getEnv("WORKER_MODE", string(w.Mode))
	switch WorkerMode(mode) {
	case ModeAnalyser, ModeChecker:
		w.Mode = WorkerMode(mode)
	default:
		log.Warn().Str("mode", mode).Msg("Unknown worker mode, keeping default")
	}
}

func defaultWorkerConfig() workerConfig {
	return workerConfig{Mode: ModeAnalyser}
}

/* Log Configuration */

type LogConfig struct {
	Level  string
	Format string
}

func (l *LogConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("LOG_FORMAT", &l.Format)
}

func defaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "console",
	}
}

type Config struct {
	Listen   listenConfig
	PgSql    pgSqlConfig
	Security securityConfig
	Nats     natsConfig
	Redis    redisConfig
	GCS      GCSConfig
	LLM      LLMConfig
	Browser  BrowserConfig
	Crawl    CrawlConfig
	Worker   workerConfig
	Log      LogConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.LLM.loadFromEnv()
	c.Browser.loadFromEnv()
	c.Crawl.loadFromEnv()
	c.Worker.loadFromEnv()
	c.Log.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:   defaultListenConfig(),
		PgSql:    defaultPgSql(),
		Security: defaultSecurityConfig(),
		Nats:     defaultNatsConfig(),
		Redis:    defaultRedisConfig(),
		GCS:      defaultGcsConfig(),
		LLM:      defaultLLMConfig(),
		Browser:  defaultBrowserConfig(),
		Crawl:    defaultCrawlConfig(),
		Worker:   defaultWorkerConfig(),
		Log:      defaultLogConfig(),
	}
}
