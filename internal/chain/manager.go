package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/config"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
)

var supportedTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// Manager 单链管理器
type Manager struct {
	mu        sync.RWMutex
	contracts map[string]*Contract // 合约映射: "contractName" -> Contract
	client    Client
	closer    func()
	config    config.ChainConfig
}

// NewManager 连接 RPC 并创建单链管理器
func NewManager(ctx context.Context, cfg config.ChainConfig) (*Manager, error) {
	client, err := createChainClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	manager, err := NewManagerWithClient(cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	manager.closer = client.Close
	return manager, nil
}

// NewManagerWithClient 使用已有客户端创建管理器
func NewManagerWithClient(cfg config.ChainConfig, client Client) (*Manager, error) {
	manager := &Manager{
		contracts: make(map[string]*Contract),
		client:    client,
		config:    cfg,
	}

	if err := manager.initContracts(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize contracts: %w", err)
	}

	return manager, nil
}

// initContracts 初始化所有合约
func (m *Manager) initContracts(cfg config.ChainConfig) error {
	for contractName, contractCfg := range cfg.Contracts {
		if !contractCfg.Enabled {
			logger.Info("Skipping disabled contract: %s", contractName)
			continue
		}

		logger.Info("Initializing contract: %s (address: %s)", contractName, contractCfg.Address)

		contract, err := NewContract(contractName, contractCfg, cfg.ChainId)
		if err != nil {
			return fmt.Errorf("failed to create contract %s: %w", contractName, err)
		}

		m.contracts[contractName] = contract
	}

	logger.Info("Successfully initialized %d contracts", len(m.contracts))
	return nil
}

// createChainClient 创建链客户端
func createChainClient(ctx context.Context, cfg config.ChainConfig) (*ethclient.Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	isSupported := false
	for _, supportedType := range supportedTypes {
		if cfg.ChainType == supportedType {
			isSupported = true
			break
		}
	}
	if !isSupported {
		return nil, fmt.Errorf("unsupported chain type %s, supported types: %v", cfg.ChainType, supportedTypes)
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, cfg.RpcUrl)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	// 测试连接
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.BlockNumber(testCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	logger.Info("Successfully created %s client", cfg.ChainType)
	return client, nil
}

// GetClient 获取客户端
func (m *Manager) GetClient() Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// GetContract 获取指定合约
func (m *Manager) GetContract(contractName string) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contract, exists := m.contracts[contractName]
	if !exists {
		return nil, fmt.Errorf("contract %s not found", contractName)
	}

	return contract, nil
}

// GetContracts 获取所有合约，按名称排序
func (m *Manager) GetContracts() []*Contract {
	m.mu.RLock()
	defer m.mu.RUnlock()

	contracts := make([]*Contract, 0, len(m.contracts))
	for _, contract := range m.contracts {
		contracts = append(contracts, contract)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].GetName() < contracts[j].GetName()
	})

	return contracts
}

// GetConfig 获取链配置
func (m *Manager) GetConfig() config.ChainConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := map[string]interface{}{
		"chain_type":    m.config.ChainType,
		"chain_id":      m.config.ChainId,
		"client_status": "connected",
	}

	if m.client == nil {
		health["client_status"] = "not_initialized"
	} else if _, err := m.client.BlockNumber(ctx); err != nil {
		health["client_status"] = "disconnected"
	}

	contracts := make(map[string]interface{}, len(m.contracts))
	for contractName, contract := range m.contracts {
		contracts[contractName] = map[string]interface{}{
			"address":   contract.GetAddress().Hex(),
			"block_num": contract.GetBlockNum(),
		}
	}
	health["contracts"] = contracts

	return health
}

// Close 关闭管理器
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closer != nil {
		m.closer()
		m.closer = nil
	}

	logger.Info("Chain manager closed")
}
