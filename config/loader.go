// =============================================================================
// 📦 DeepResearch 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DEEPRESEARCH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → .env 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 DeepResearch 的完整配置结构
type Config struct {
	// Research 编排参数
	Research ResearchConfig `yaml:"research" env:"RESEARCH"`

	// LLM 模型后端与各角色模型
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Search 搜索后端
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Redis 搜索缓存
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Archive 运行归档
	Archive ArchiveConfig `yaml:"archive" env:"ARCHIVE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Server serve 子命令的 HTTP 接口
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// MCP 研究员可用的外部 MCP 工具服务器
	MCP MCPConfig `yaml:"mcp" env:"MCP"`
}

// ResearchConfig 编排参数
type ResearchConfig struct {
	// supervisor 最大迭代次数
	MaxResearchIterations int `yaml:"max_research_iterations" env:"MAX_RESEARCH_ITERATIONS"`
	// 提示词中声明的并发研究员上限
	MaxConcurrentResearchUnits int `yaml:"max_concurrent_research_units" env:"MAX_CONCURRENT_RESEARCH_UNITS"`
	// 研究简报最大长度（字符）
	MaxBriefLength int `yaml:"max_brief_length" env:"MAX_BRIEF_LENGTH"`
	// 搜索工具默认结果数
	SearchMaxResults int `yaml:"search_max_results" env:"SEARCH_MAX_RESULTS"`
	// 是否对搜索结果全文做摘要
	SummarizeSearchResults bool `yaml:"summarize_search_results" env:"SUMMARIZE_SEARCH_RESULTS"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// OpenAI 兼容接口地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 可重试错误的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	ScopingModel       string `yaml:"scoping_model" env:"SCOPING_MODEL"`
	ResearchModel      string `yaml:"research_model" env:"RESEARCH_MODEL"`
	SummarizationModel string `yaml:"summarization_model" env:"SUMMARIZATION_MODEL"`
	CompressionModel   string `yaml:"compression_model" env:"COMPRESSION_MODEL"`
	SupervisorModel    string `yaml:"supervisor_model" env:"SUPERVISOR_MODEL"`
	WriterModel        string `yaml:"writer_model" env:"WRITER_MODEL"`
	WriterMaxTokens    int    `yaml:"writer_max_tokens" env:"WRITER_MAX_TOKENS"`
}

// SearchConfig 搜索配置
type SearchConfig struct {
	// 后端类型，目前只有 tavily
	Provider string `yaml:"provider" env:"PROVIDER"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	// 单次搜索工具调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 结果缓存
	Cache SearchCacheConfig `yaml:"cache" env:"CACHE"`
}

// SearchCacheConfig 搜索结果缓存
type SearchCacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// ArchiveConfig 运行归档配置
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 连接串；sqlite 为文件路径
	DSN string `yaml:"dsn" env:"DSN"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// 运行期间暴露 /metrics 的监听地址，为空时不启动
	Addr string `yaml:"addr" env:"ADDR"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 允许的 API Key，与 JWT 任一通过即可；两者都为空时不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// HS256 签名密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// 每个客户端每秒请求数，0 表示不限流
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 一次研究可能持续数分钟，写超时需大于 RunTimeout
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单次研究运行的超时
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

// MCPConfig 通过 stdio 启动的 MCP 服务器，其工具注册给研究员
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 启动命令与参数，例如 npx -y @modelcontextprotocol/server-filesystem ./files
	Command string   `yaml:"command" env:"COMMAND"`
	Args    []string `yaml:"args" env:"ARGS"`
	// 追加给子进程的环境变量，KEY=VALUE 形式
	Env []string `yaml:"env" env:"ENV"`
	// 工具名前缀，避免与 tavily_search、think 重名
	ToolPrefix string `yaml:"tool_prefix" env:"TOOL_PREFIX"`
	// 单次工具调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envFile    string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DEEPRESEARCH",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvFile 设置 .env 文件路径。文件中的变量不会覆盖已存在的环境变量。
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → .env 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Research.MaxResearchIterations <= 0 {
		errs = append(errs, "research.max_research_iterations must be positive")
	}
	if c.Research.MaxConcurrentResearchUnits <= 0 {
		errs = append(errs, "research.max_concurrent_research_units must be positive")
	}
	if c.Research.MaxBriefLength < 10 {
		errs = append(errs, "research.max_brief_length must be at least 10")
	}
	if c.Research.SearchMaxResults < 1 || c.Research.SearchMaxResults > 10 {
		errs = append(errs, "research.search_max_results must be between 1 and 10")
	}

	models := []struct{ key, value string }{
		{"llm.scoping_model", c.LLM.ScopingModel},
		{"llm.research_model", c.LLM.ResearchModel},
		{"llm.summarization_model", c.LLM.SummarizationModel},
		{"llm.compression_model", c.LLM.CompressionModel},
		{"llm.supervisor_model", c.LLM.SupervisorModel},
		{"llm.writer_model", c.LLM.WriterModel},
	}
	for _, m := range models {
		if strings.TrimSpace(m.value) == "" {
			errs = append(errs, m.key+" is required")
		}
	}
	if c.LLM.WriterMaxTokens <= 0 {
		errs = append(errs, "llm.writer_max_tokens must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}

	if c.Search.Provider != "tavily" {
		errs = append(errs, fmt.Sprintf("search.provider %q is not supported", c.Search.Provider))
	}
	if c.Search.Cache.Enabled && c.Search.Cache.TTL <= 0 {
		errs = append(errs, "search.cache.ttl must be positive when the cache is enabled")
	}

	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("archive.driver %q is not supported", c.Archive.Driver))
		}
		if c.Archive.DSN == "" {
			errs = append(errs, "archive.dsn is required when the archive is enabled")
		}
	}

	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, "server.rate_limit_burst must be positive when rate limiting is enabled")
	}
	if c.Server.RunTimeout < 0 {
		errs = append(errs, "server.run_timeout must not be negative")
	}

	if c.MCP.Enabled && strings.TrimSpace(c.MCP.Command) == "" {
		errs = append(errs, "mcp.command is required when mcp is enabled")
	}
	if c.MCP.Timeout < 0 {
		errs = append(errs, "mcp.timeout must not be negative")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
