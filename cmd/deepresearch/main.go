// =============================================================================
// DeepResearch 主入口
// =============================================================================
// 使用方法:
//
//	deepresearch run "问题"                       # 执行一次研究并输出报告
//	deepresearch run --config config.yaml "问题"  # 指定配置文件
//	deepresearch serve --config config.yaml       # 启动 HTTP API
//	deepresearch runs --limit 10                  # 查看归档的运行
//	deepresearch version                          # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/deepresearch/config"
	"github.com/BaSui01/deepresearch/internal/archive"
	"github.com/BaSui01/deepresearch/internal/database"
	"github.com/BaSui01/deepresearch/research"
	"github.com/BaSui01/deepresearch/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runResearch(ctx, os.Args[2:], os.Stdout)
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "runs":
		err = runList(ctx, os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置。
func loadConfig(configPath, envFile string) (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	if envFile != "" {
		loader = loader.WithEnvFile(envFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔬 run 命令
// =============================================================================

func runResearch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	asJSON := fs.Bool("json", false, "Print the full run result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("a research question is required")
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// run 期间可选暴露 /metrics
	if cfg.Metrics.Addr != "" {
		m := newMetricsManager(cfg.Metrics.Addr, a.registry, logger)
		if err := m.Start(); err != nil {
			logger.Warn("metrics endpoint disabled", zap.Error(err))
		} else {
			defer func() { _ = m.Shutdown(context.Background()) }()
		}
	}

	res, err := a.orchestrator.Run(ctx, []types.Message{types.NewUserMessage(question)})
	if err != nil {
		return err
	}
	return printResult(out, res, *asJSON)
}

func printResult(out io.Writer, res *research.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Outcome == research.OutcomeClarification {
		fmt.Fprintln(out, "Clarification needed:")
	}
	_, err := fmt.Fprintln(out, res.Text)
	return err
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting deepresearch",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	handler := &apiHandler{
		researcher: a.orchestrator,
		runTimeout: cfg.Server.RunTimeout,
		logger:     logger.With(zap.String("component", "api")),
	}
	if a.archive != nil {
		handler.runs = a.archive
	}

	srv := NewServer(cfg, handler, a.registry, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	err = srv.Run(ctx)
	logger.Info("deepresearch stopped")
	return err
}

// =============================================================================
// 📚 runs 命令
// =============================================================================

func runList(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")
	limit := fs.Int("limit", 10, "Number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled {
		return errors.New("run archive is not enabled (archive.enabled)")
	}

	pool, err := database.Open(cfg.Archive.Driver, cfg.Archive.DSN, database.DefaultPoolConfig(), zap.NewNop())
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := archive.NewStore(pool, nil)
	if err != nil {
		return err
	}
	recs, err := store.List(ctx, *limit)
	if err != nil {
		return err
	}
	printRuns(out, recs)
	return nil
}

func printRuns(out io.Writer, recs []archive.RunRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No runs archived.")
		return
	}
	for _, r := range recs {
		question := r.Question
		if len([]rune(question)) > 60 {
			question = string([]rune(question)[:57]) + "..."
		}
		fmt.Fprintf(out, "%s  %-13s  %s  %6s  %s\n",
			r.StartedAt.Format(time.DateTime), r.Outcome, r.RunID,
			r.Duration().Round(time.Second), question)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "deepresearch %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `deepresearch - multi-agent deep research

Usage:
  deepresearch <command> [options]

Commands:
  run       Research a question and print the report
  serve     Start the HTTP API
  runs      List archived runs
  version   Show version information
  help      Show this help message

Common options:
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Path to .env file (default .env, ignored when missing)

Options for 'run':
  --json              Print the full run result as JSON

Examples:
  deepresearch run "How do solid-state batteries compare to lithium-ion?"
  deepresearch serve --config /etc/deepresearch/config.yaml
  deepresearch runs --limit 20`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
