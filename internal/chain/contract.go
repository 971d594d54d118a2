package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/config"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DepositEvent 充值合约事件名
const DepositEvent = "Deposited"

// depositABI 未配置 ABI 文件时使用的充值合约 ABI
const depositABI = `[{"anonymous":false,"inputs":[
	{"indexed":true,"internalType":"address","name":"account","type":"address"},
	{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}
],"name":"Deposited","type":"event"}]`

// Event 解析后的合约事件
type Event struct {
	Name        string
	Contract    string
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
	Fields      map[string]interface{}
}

// Deposit 解析后的充值
type Deposit struct {
	Account common.Address
	Amount  *big.Int
}

// Contract 合约工具类
type Contract struct {
	address  common.Address // 合约地址
	abi      abi.ABI        // 合约ABI
	name     string         // 合约名称
	blockNum int64          // 合约部署的区块号
	chainId  int64          // 链ID
}

// NewContract 创建合约实例
func NewContract(name string, contractCfg config.ContractConfig, chainId int64) (*Contract, error) {
	parsedABI, err := loadABI(contractCfg.ABIPath)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(contractCfg.Address) {
		return nil, fmt.Errorf("invalid address %q for contract %s", contractCfg.Address, name)
	}

	return &Contract{
		address:  common.HexToAddress(contractCfg.Address),
		abi:      parsedABI,
		name:     name,
		blockNum: contractCfg.BlockNum,
		chainId:  chainId,
	}, nil
}

// loadABI 读取 ABI 文件，支持完整编译输出和纯 ABI 数组，路径为空时使用内置充值 ABI
func loadABI(path string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(depositABI))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}

	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsedABI, nil
	}

	parsedABI, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsedABI, nil
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetABI 获取合约ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// GetBlockNum 获取合约部署区块号
func (c *Contract) GetBlockNum() int64 {
	return c.blockNum
}

// GetChainId 获取链ID
func (c *Contract) GetChainId() int64 {
	return c.chainId
}

// ParseEvent 解析事件日志，未知事件返回 nil
func (c *Contract) ParseEvent(log types.Log) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s#%d has no topics", log.TxHash.Hex(), log.Index)
	}

	event, err := c.abi.EventByID(log.Topics[0])
	if err != nil {
		logger.Warn("Unknown event signature: %s in contract %s", log.Topics[0].Hex(), c.name)
		return nil, nil
	}

	result := &Event{
		Name:        event.Name,
		Contract:    c.name,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		Fields:      make(map[string]interface{}),
	}

	// 解析索引参数
	indexed := 0
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		indexed++
		if indexed >= len(log.Topics) {
			return nil, fmt.Errorf("event %s: missing topic for %s", event.Name, input.Name)
		}
		result.Fields[input.Name] = parseTopicValue(log.Topics[indexed], input.Type)
	}

	// 解析非索引参数
	if len(log.Data) > 0 {
		if err := c.abi.UnpackIntoMap(result.Fields, event.Name, log.Data); err != nil {
			return nil, fmt.Errorf("event %s: failed to unpack data: %w", event.Name, err)
		}
	}

	return result, nil
}

// DecodeDeposit 从 Deposited 事件中取出账户和金额
func DecodeDeposit(event *Event) (*Deposit, error) {
	if event == nil || event.Name != DepositEvent {
		return nil, fmt.Errorf("not a %s event", DepositEvent)
	}
	account, ok := event.Fields["account"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s event without account", DepositEvent)
	}
	amount, ok := event.Fields["amount"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s event without amount", DepositEvent)
	}
	return &Deposit{Account: account, Amount: amount}, nil
}

// parseTopicValue 解析主题值
func parseTopicValue(topic common.Hash, t abi.Type) interface{} {
	switch t.T {
	case abi.UintTy, abi.IntTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.BoolTy:
		return new(big.Int).SetBytes(topic.Bytes()).Sign() > 0
	case abi.FixedBytesTy:
		return topic.Bytes()
	default:
		return topic.Hex()
	}
}
