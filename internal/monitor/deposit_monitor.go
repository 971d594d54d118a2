package monitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/chain"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/metrics"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
)

// DepositStore 充值去重存储
type DepositStore interface {
	Record(ctx context.Context, deposit *model.DepositModel) (bool, error)
	LastBlock(ctx context.Context, contractAddress string) (int64, error)
	Each(ctx context.Context, fn func(model.DepositModel) error) error
}

// Crediter 入账目标，由 bank.Ledger 实现
type Crediter interface {
	Credit(account common.Address, amount *big.Int) error
}

// RestoreDeposits 把已记录的充值重新计入账本
//
// 账本只在内存中，重启后从上次区块继续扫描，之前入账的充值需要重放。
func RestoreDeposits(ctx context.Context, store DepositStore, bank Crediter) (int, error) {
	restored := 0
	err := store.Each(ctx, func(deposit model.DepositModel) error {
		amount, ok := new(big.Int).SetString(deposit.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			logger.Warn("Skipping recorded deposit %s#%d with invalid amount %q", deposit.TxHash, deposit.LogIndex, deposit.Amount)
			return nil
		}
		if !common.IsHexAddress(deposit.Account) {
			logger.Warn("Skipping recorded deposit %s#%d with invalid account %q", deposit.TxHash, deposit.LogIndex, deposit.Account)
			return nil
		}
		if err := bank.Credit(common.HexToAddress(deposit.Account), amount); err != nil {
			return fmt.Errorf("failed to restore deposit %s#%d: %w", deposit.TxHash, deposit.LogIndex, err)
		}
		restored++
		return nil
	})
	if err != nil {
		return restored, err
	}

	logger.Info("Restored %d recorded deposits", restored)
	return restored, nil
}

// DepositMonitor 监听充值合约事件并给账本入账
type DepositMonitor struct {
	chainManager *chain.Manager
	store        DepositStore
	bank         Crediter
	batchSize    int64
	pollEvery    time.Duration
	batchDelay   time.Duration

	mu            sync.Mutex // 保护 nextBlock 和退避状态
	nextBlock     int64
	retryCount    int
	lastRetryTime time.Time
	backoff       time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDepositMonitor 创建充值监听器
func NewDepositMonitor(chainManager *chain.Manager, store DepositStore, bank Crediter) *DepositMonitor {
	cfg := chainManager.GetConfig()

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	pollEvery := time.Duration(cfg.PollEvery) * time.Second
	if pollEvery <= 0 {
		pollEvery = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DepositMonitor{
		chainManager: chainManager,
		store:        store,
		bank:         bank,
		batchSize:    batchSize,
		pollEvery:    pollEvery,
		batchDelay:   500 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start 启动监控
func (m *DepositMonitor) Start() error {
	logger.Info("Starting deposit monitor")

	contracts := m.chainManager.GetContracts()
	if len(contracts) == 0 {
		return fmt.Errorf("no contracts available for monitoring")
	}
	if m.chainManager.GetClient() == nil {
		return fmt.Errorf("chain client not available")
	}

	currentBlock, err := m.currentBlock(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to blockchain: %w", err)
	}
	logger.Info("Connected to blockchain, current block: %d, monitoring %d contracts", currentBlock, len(contracts))

	go m.loop()
	return nil
}

// Stop 停止监控并等待当前轮询结束
func (m *DepositMonitor) Stop() {
	logger.Info("Stopping deposit monitor")
	m.cancel()
	<-m.done
}

func (m *DepositMonitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Info("Deposit monitor stopped")
			return
		case <-ticker.C:
			if m.backingOff() {
				continue
			}
			if _, err := m.Poll(m.ctx); err != nil {
				m.handleError(err)
				continue
			}
			m.resetBackoff()
		}
	}
}

// Poll 处理从上次位置到最新区块的所有日志，返回本轮入账笔数
func (m *DepositMonitor) Poll(ctx context.Context) (int, error) {
	currentBlock, err := m.currentBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current block number: %w", err)
	}

	fromBlock, err := m.startBlock(ctx)
	if err != nil {
		return 0, err
	}

	credited := 0
	for from := fromBlock; from <= currentBlock; from += m.batchSize {
		to := from + m.batchSize - 1
		if to > currentBlock {
			to = currentBlock
		}

		n, err := m.processBatch(ctx, from, to)
		credited += n
		if err != nil {
			if isAPIRateLimitError(err) {
				logger.Warn("API rate limit hit while processing blocks %d-%d", from, to)
			}
			return credited, fmt.Errorf("failed to process blocks %d-%d: %w", from, to, err)
		}

		m.mu.Lock()
		m.nextBlock = to + 1
		m.mu.Unlock()

		if to < currentBlock && m.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return credited, ctx.Err()
			case <-time.After(m.batchDelay):
			}
		}
	}

	return credited, nil
}

// processBatch 拉取一批区块的日志，按合约分组并发处理
func (m *DepositMonitor) processBatch(ctx context.Context, fromBlock, toBlock int64) (int, error) {
	addresses, contractMap := m.deployedContracts(toBlock)
	if len(addresses) == 0 {
		logger.Debug("No deployed contracts for blocks %d-%d", fromBlock, toBlock)
		return 0, nil
	}

	logs, err := chain.NewBlock().GetBatchBlockLogs(ctx, m.chainManager.GetClient(), addresses, fromBlock, toBlock)
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		return 0, nil
	}

	logsByContract := groupLogsByContract(logs)
	logger.Debug("Found %d logs in %d contracts for blocks %d-%d", len(logs), len(logsByContract), fromBlock, toBlock)

	pool, err := ants.NewPool(len(logsByContract))
	if err != nil {
		return 0, fmt.Errorf("failed to create pool for %d groups: %w", len(logsByContract), err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		credited atomic.Int64
		failed   atomic.Int64
	)
	for address, contractLogs := range logsByContract {
		contract := contractMap[address]
		if contract == nil {
			logger.Warn("Unknown contract address: %s", address.Hex())
			continue
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			ok, bad := m.processContractLogs(ctx, contract, contractLogs)
			credited.Add(int64(ok))
			failed.Add(int64(bad))
		})
		if err != nil {
			wg.Done()
			return int(credited.Load()), fmt.Errorf("failed to submit task to pool: %w", err)
		}
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return int(credited.Load()), fmt.Errorf("%d deposits failed", n)
	}
	return int(credited.Load()), nil
}

// processContractLogs 处理单个合约的日志，返回入账和失败的笔数
func (m *DepositMonitor) processContractLogs(ctx context.Context, contract *chain.Contract, logs []types.Log) (int, int) {
	credited, failed := 0, 0
	for _, log := range logs {
		event, err := contract.ParseEvent(log)
		if err != nil {
			logger.Error("Error parsing event for contract %s: %v", contract.GetName(), err)
			metrics.IncrementDeposit("invalid")
			continue
		}
		if event == nil || event.Name != chain.DepositEvent {
			continue
		}

		deposit, err := chain.DecodeDeposit(event)
		if err != nil || deposit.Amount.Sign() <= 0 {
			logger.Warn("Skipping malformed deposit %s#%d", log.TxHash.Hex(), log.Index)
			metrics.IncrementDeposit("invalid")
			continue
		}

		fresh, err := m.store.Record(ctx, &model.DepositModel{
			ContractAddress: contract.GetAddress().Hex(),
			TxHash:          log.TxHash.Hex(),
			LogIndex:        int64(log.Index),
			BlockNum:        int64(log.BlockNumber),
			Account:         deposit.Account.Hex(),
			Amount:          deposit.Amount.String(),
		})
		if err != nil {
			logger.Error("Failed to record deposit %s#%d: %v", log.TxHash.Hex(), log.Index, err)
			metrics.IncrementDeposit("failed")
			failed++
			continue
		}
		if !fresh {
			metrics.IncrementDeposit("duplicate")
			continue
		}

		if err := m.bank.Credit(deposit.Account, deposit.Amount); err != nil {
			logger.Error("Failed to credit deposit %s#%d: %v", log.TxHash.Hex(), log.Index, err)
			metrics.IncrementDeposit("failed")
			failed++
			continue
		}

		metrics.IncrementDeposit("credited")
		logger.Info("Credited %s to %s from %s#%d", deposit.Amount, deposit.Account.Hex(), log.TxHash.Hex(), log.Index)
		credited++
	}
	return credited, failed
}

func (m *DepositMonitor) currentBlock(ctx context.Context) (int64, error) {
	return chain.NewBlock().GetCurrentBlockNumber(ctx, m.chainManager.GetClient())
}

// startBlock 首次轮询时取部署区块和已记录最大区块的较大者
func (m *DepositMonitor) startBlock(ctx context.Context) (int64, error) {
	m.mu.Lock()
	next := m.nextBlock
	m.mu.Unlock()
	if next > 0 {
		return next, nil
	}

	contracts := m.chainManager.GetContracts()
	if len(contracts) == 0 {
		return 0, fmt.Errorf("no contracts configured")
	}

	start := int64(-1)
	for _, contract := range contracts {
		from := contract.GetBlockNum()
		last, err := m.store.LastBlock(ctx, contract.GetAddress().Hex())
		if err != nil {
			return 0, err
		}
		if last >= from {
			from = last + 1
		}
		if start < 0 || from < start {
			start = from
		}
	}

	logger.Info("Deposit monitor starting from block %d", start)
	m.mu.Lock()
	m.nextBlock = start
	m.mu.Unlock()
	return start, nil
}

// deployedContracts 过滤掉在 toBlock 之前尚未部署的合约
func (m *DepositMonitor) deployedContracts(toBlock int64) ([]common.Address, map[common.Address]*chain.Contract) {
	var addresses []common.Address
	contractMap := make(map[common.Address]*chain.Contract)

	for _, contract := range m.chainManager.GetContracts() {
		if toBlock < contract.GetBlockNum() {
			continue
		}
		addresses = append(addresses, contract.GetAddress())
		contractMap[contract.GetAddress()] = contract
	}

	return addresses, contractMap
}

// handleError 指数退避
func (m *DepositMonitor) handleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryCount++
	m.lastRetryTime = time.Now()
	if m.retryCount > 5 {
		m.backoff = 5 * time.Minute
	} else {
		m.backoff = time.Duration(m.retryCount) * 10 * time.Second
	}

	logger.Error("Deposit monitor encountered error (retry %d): %v", m.retryCount, err)
}

func (m *DepositMonitor) backingOff() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount > 0 && time.Since(m.lastRetryTime) < m.backoff
}

func (m *DepositMonitor) resetBackoff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount = 0
	m.backoff = 0
}

// GetStatus 获取监控状态
func (m *DepositMonitor) GetStatus(ctx context.Context) map[string]interface{} {
	m.mu.Lock()
	next, retries := m.nextBlock, m.retryCount
	m.mu.Unlock()

	return map[string]interface{}{
		"next_block":  next,
		"retry_count": retries,
		"chain_info":  m.chainManager.GetHealthStatus(ctx),
	}
}

func isAPIRateLimitError(err error) bool {
	return strings.Contains(err.Error(), "Too Many Requests")
}

func groupLogsByContract(logs []types.Log) map[common.Address][]types.Log {
	logsByContract := make(map[common.Address][]types.Log)
	for _, log := range logs {
		logsByContract[log.Address] = append(logsByContract[log.Address], log)
	}
	return logsByContract
}
