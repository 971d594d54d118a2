package capability

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// hatsABI Hats 协议中用到的方法
const hatsABI = `[
	{"inputs":[{"name":"_wearer","type":"address"},{"name":"_hatId","type":"uint256"}],"name":"isEligible","outputs":[{"name":"eligible","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_user","type":"address"},{"name":"_hatId","type":"uint256"}],"name":"isWearerOfHat","outputs":[{"name":"isWearer","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_hatId","type":"uint256"},{"name":"_from","type":"address"},{"name":"_to","type":"address"}],"name":"transferHat","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Backend 调用和发送交易所需的链客户端，由 *ethclient.Client 实现
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// HatsGate 基于链上 Hats 合约的权限网关
type HatsGate struct {
	client   Backend
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainId  *big.Int
}

// NewHatsGate 创建链上权限网关，privateKey 为空时 TransferRole 不可用
func NewHatsGate(client Backend, address common.Address, privateKey string, chainId int64) (*HatsGate, error) {
	parsed, err := abi.JSON(strings.NewReader(hatsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hats ABI: %w", err)
	}

	g := &HatsGate{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		chainId:  big.NewInt(chainId),
	}

	if privateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		g.key = key
	}

	return g, nil
}

func (g *HatsGate) IsEligible(ctx context.Context, account common.Address, role *big.Int) (bool, error) {
	return g.callBool(ctx, "isEligible", account, role)
}

func (g *HatsGate) IsWearer(ctx context.Context, account common.Address, role *big.Int) (bool, error) {
	return g.callBool(ctx, "isWearerOfHat", account, role)
}

func (g *HatsGate) TransferRole(ctx context.Context, role *big.Int, from, to common.Address) error {
	if g.key == nil {
		return fmt.Errorf("hats gate has no signing key configured")
	}

	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainId)
	if err != nil {
		return fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := g.contract.Transact(opts, "transferHat", role, from, to)
	if err != nil {
		return fmt.Errorf("transferHat: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return fmt.Errorf("waiting for transferHat %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transferHat %s reverted", tx.Hash().Hex())
	}
	return nil
}

func (g *HatsGate) callBool(ctx context.Context, method string, account common.Address, role *big.Int) (bool, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, account, role); err != nil {
		return false, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%s: unexpected output length %d", method, len(out))
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}
