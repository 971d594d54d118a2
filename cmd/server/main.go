package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/bank"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/capability"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/chain"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/config"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/handler"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/journal"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/metrics"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/monitor"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/repository"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/router"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/scheduler"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	if err := logger.Setup(cfg.Log); err != nil {
		logger.Fatal("Failed to setup logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	var db *gorm.DB
	if cfg.Database.Enabled {
		db, err = repository.Init(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize database: %v", err)
		}
	}

	ledger := bank.NewLedger()

	gate, err := newGate(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize capability gate: %v", err)
	}
	role, err := capability.ParseRoleId(cfg.Capability.RegistrarRole)
	if err != nil {
		logger.Fatal("Failed to parse registrar role: %v", err)
	}

	opts := []logic.Option{logic.WithGate(gate, role)}
	var (
		events   *journal.Journal
		history  handler.EventHistory
		deposits monitor.DepositStore = monitor.NewMemoryDepositStore()
	)
	if db != nil {
		eventRepo := repository.NewEventRepository(db)
		last, err := eventRepo.LastSequence(ctx)
		if err != nil {
			logger.Fatal("Failed to load last event sequence: %v", err)
		}
		logger.Info("Resuming ledger events after sequence %d", last)
		opts = append(opts, logic.WithEventSequence(last))
		events = journal.New(eventRepo, 0)
		history = eventRepo

		// 账本只在内存中，重放已入账的充值
		deposits = repository.NewDepositRepository(db)
		if _, err := monitor.RestoreDeposits(ctx, deposits, ledger); err != nil {
			logger.Fatal("Failed to restore deposits: %v", err)
		}
	} else {
		events = journal.New(nil, 0)
	}

	opts = append(opts, logic.WithEventSink(events), logic.WithEventSink(metrics.Sink{}))
	manager := logic.NewManager(ledger, opts...)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	var faucet handler.Crediter
	if cfg.Bank.Faucet {
		logger.Warn("Faucet endpoint is enabled")
		faucet = ledger
	}
	r := router.Setup(manager, events, history, faucet)

	// 启动定时任务
	tasks, err := scheduler.NewManager(
		scheduler.NewAuditJob(manager, cfg.Task.AuditInterval),
		scheduler.NewFlushJob(events, cfg.Task.FlushInterval),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := tasks.Start(); err != nil {
		logger.Fatal("Failed to start task manager: %v", err)
	}
	defer tasks.Stop()

	// 启动充值监听
	if cfg.Chain.Enabled {
		chainManager, err := chain.NewManager(ctx, cfg.Chain)
		if err != nil {
			logger.Fatal("Failed to initialize chain manager: %v", err)
		}
		defer chainManager.Close()

		depositMonitor := monitor.NewDepositMonitor(chainManager, deposits, ledger)
		if err := depositMonitor.Start(); err != nil {
			logger.Fatal("Failed to start deposit monitor: %v", err)
		}
		defer depositMonitor.Stop()
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}

	// 最后一次落库
	if n, err := events.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush ledger events: %v", err)
	} else if n > 0 {
		logger.Info("Flushed %d ledger events before exit", n)
	}
}

// newGate 按配置创建权限网关
func newGate(ctx context.Context, cfg *config.Config) (capability.Gate, error) {
	switch cfg.Capability.Mode {
	case "", "static":
		return capability.NewStaticGateFromConfig(cfg.Capability.Wearers, cfg.Capability.Eligible)
	case "hats":
		if !common.IsHexAddress(cfg.Capability.HatsContract) {
			return nil, errors.New("hats mode requires capability.hats_contract")
		}
		client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
		if err != nil {
			return nil, err
		}
		return capability.NewHatsGate(client, common.HexToAddress(cfg.Capability.HatsContract), cfg.Capability.PrivateKey, cfg.Chain.ChainId)
	default:
		return nil, errors.New("unknown capability mode " + cfg.Capability.Mode)
	}
}
