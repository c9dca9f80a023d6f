package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"DeFAI-Agent/internal/ai/gemini"
	"DeFAI-Agent/internal/api"
	"DeFAI-Agent/internal/attestation"
	"DeFAI-Agent/internal/chat"
	"DeFAI-Agent/internal/config"
	"DeFAI-Agent/internal/events"
	"DeFAI-Agent/internal/flare"
	"DeFAI-Agent/internal/oracle"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/internal/storage/mysql"
	"DeFAI-Agent/pkg/logger"
)

// main 是 defaid 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("defaid 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("DEFAI_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "defai.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	apiKey := cfg.AI.ResolveAPIKey()
	if apiKey == "" {
		return errors.New("需要配置 ai.api_key 或设置对应的环境变量")
	}
	aiClient, err := gemini.NewClient(gemini.Config{
		APIKey:  apiKey,
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout(),
	})
	if err != nil {
		return err
	}

	chainProvider, err := flare.NewProvider(ctx, flare.Config{
		RPCURL:        cfg.Flare.RPCURL,
		ExplorerURL:   cfg.Flare.ExplorerURL,
		ChainID:       cfg.Flare.ChainID,
		FTSOV2Address: cfg.Flare.FTSOV2,
		GasLimit:      cfg.Flare.GasLimit,
	})
	if err != nil {
		return err
	}
	defer chainProvider.Close()

	promptService := prompts.NewService()

	catalog, err := oracle.LoadCatalog(cfg.Oracle.FeedCatalog)
	if err != nil {
		return err
	}
	aggregator := oracle.NewAggregatorClient(cfg.Oracle.AggregatorBaseURL, cfg.Oracle.Timeout())

	engineOpts := []oracle.Option{
		oracle.WithTimeout(cfg.Oracle.Timeout()),
		oracle.WithTokenExtractor(aiClient, promptService),
	}
	switch cfg.Oracle.Cache.Driver {
	case "", "none":
	case "redis":
		cache, err := oracle.NewRedisRoundCache(ctx, cfg.Oracle.Cache)
		if err != nil {
			return err
		}
		defer cache.Close()
		engineOpts = append(engineOpts, oracle.WithCache(cache))
	default:
		return fmt.Errorf("未知的缓存驱动: %s", cfg.Oracle.Cache.Driver)
	}
	engine := oracle.NewEngine(catalog, chainProvider, aggregator, engineOpts...)

	attestor := attestation.NewVtpm(attestation.Config{
		Simulate:   cfg.Attestation.Simulate,
		SocketPath: cfg.Attestation.SocketPath,
		Timeout:    30 * time.Second,
	})

	var repo mysql.ExchangeRepository
	switch cfg.Storage.Exchanges.Driver {
	case "", "memory":
		repo = mysql.NewMemoryExchangeRepository()
	case "mysql":
		sqlRepo, err := mysql.NewSQLExchangeRepository(ctx, cfg.Storage.Exchanges)
		if err != nil {
			return err
		}
		repo = sqlRepo
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Exchanges.Driver)
	}
	defer repo.Close()

	var publisher events.Publisher
	switch cfg.Events.Driver {
	case "", "none":
		publisher = events.NoopPublisher{}
	case "rabbitmq":
		rabbit, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQ.ResolveURL(),
			Queue:   cfg.Events.RabbitMQ.Queue,
			Durable: cfg.Events.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		publisher = rabbit
	default:
		return fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.L().Warn("关闭事件发布器失败", "error", err)
		}
	}()

	dispatcher := chat.NewDispatcher(chat.DispatcherDeps{
		Sessions:   chat.NewManager(cfg.Chat.ContextWindow),
		AI:         aiClient,
		Prompts:    promptService,
		Chain:      chainProvider,
		Analytics:  engine,
		Attestor:   attestor,
		Catalog:    catalog,
		Repository: repo,
		Publisher:  publisher,
	})

	server := api.NewServer(cfg.Server.Address, dispatcher)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
