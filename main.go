package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reasoner/pkg/agent"
	"reasoner/pkg/channels"
	_ "reasoner/pkg/channels/autoload" // 自動註冊 Channels
	"reasoner/pkg/config"
	"reasoner/pkg/gateway"
	"reasoner/pkg/handler"
	"reasoner/pkg/llm"
	_ "reasoner/pkg/llm/autoload" // 自動註冊 LLM Providers
	"reasoner/pkg/monitor"
	"reasoner/pkg/utils"

	"github.com/subosito/gotenv"
)

const attachmentSweepInterval = time.Hour

func main() {
	appPath := flag.String("config", "config.json", "application config (llm, channels, reasoner)")
	sysPath := flag.String("system", "system.json", "engine config (retries, timeouts, logging)")
	flag.Parse()

	// .env 不存在時忽略
	_ = gotenv.Load()

	// --- 0. 讀取設定檔 ---
	cfg, sys, err := config.Load(*appPath, *sysPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if _, err := monitor.SetupSlog(sys.LogLevel, sys.LogFile); err != nil {
		slog.Warn("Log file disabled", "error", err)
	}
	monitor.PrintBanner(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 1. LLM 設定 ---
	stream, err := llm.NewFromConfig(cfg.LLM, sys)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}
	completion := llm.NewCompletionClient(stream, llm.WithTimeout(sys.LLMTimeout()))

	// --- 2. Reasoner 與 session ---
	reasoner := agent.NewReasoner(completion, agent.WithDescription(cfg.Reasoner.Description))
	sessions := llm.NewSessionManager()

	var mon monitor.Monitor = monitor.NewCLIMonitor()
	if sys.ArchivePath != "" {
		mon = monitor.NewMultiMonitor(mon, monitor.NewArchiveMonitor(sys.ArchivePath))
	}

	chatHandler := handler.NewChatHandler(reasoner, sessions,
		handler.WithAgentName(cfg.ReasonerName()),
		handler.WithMonitor(mon),
	)

	// --- 3. Gateway 初始化（使用 Builder 模式）---
	builder := gateway.NewGatewayBuilder().
		WithSystemConfig(sys).
		WithMonitor(mon).
		WithHandler(chatHandler)

	if loaded := channels.LoadFromConfig(builder, cfg.Channels, sessions, sys); len(loaded) == 0 {
		slog.Warn("No channels configured, nothing will reach the reasoner", "available", channels.RegisteredChannels())
	}

	gw, err := builder.Build()
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}
	slog.Info("Reasoner ready", "agent", cfg.ReasonerName(), "channels", gw.ChannelIDs())

	go sweepAttachments(ctx, sys.AttachmentTTL())
	watchSystemConfig(ctx, *sysPath, stream)

	<-ctx.Done()
	slog.Info("Received shutdown signal, stopping services")

	chatHandler.Close()
	gw.StopAll()
	slog.Info("Bye!")
}

// watchSystemConfig hot-reloads the log level and the chunk debug switch.
func watchSystemConfig(ctx context.Context, path string, stream llm.LLMClient) {
	reloadCh, err := config.WatchConfig(ctx, config.DefaultDebounce, path)
	if err != nil {
		slog.Warn("Config hot reload disabled", "error", err)
		return
	}

	go func() {
		for changed := range reloadCh {
			sys := config.LoadSystemConfig(changed)
			monitor.SetLevel(sys.LogLevel)
			if d, ok := stream.(llm.DebugSetter); ok {
				d.SetDebug(sys.DebugChunks)
			}
			slog.Info("System config reloaded", "file", changed, "log_level", sys.LogLevel, "debug_chunks", sys.DebugChunks)
		}
	}()
}

func sweepAttachments(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(attachmentSweepInterval)
	defer ticker.Stop()

	for {
		if n, err := utils.PruneAttachments(utils.DefaultAttachmentDir, ttl); err != nil {
			slog.Warn("Attachment sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("Old attachments removed", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
