package chain

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	depositAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	alice          = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func newDepositContract(t *testing.T) *Contract {
	t.Helper()
	contract, err := NewContract("deposit", config.ContractConfig{
		Address:  depositAddress.Hex(),
		Enabled:  true,
		BlockNum: 10,
	}, 31337)
	require.NoError(t, err)
	return contract
}

func depositLog(t *testing.T, contract *Contract, account common.Address, amount *big.Int) types.Log {
	t.Helper()
	event := contract.GetABI().Events[DepositEvent]
	data, err := event.Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)
	return types.Log{
		Address:     contract.GetAddress(),
		Topics:      []common.Hash{event.ID, common.BytesToHash(account.Bytes())},
		Data:        data,
		BlockNumber: 12,
		TxHash:      common.HexToHash("0x01"),
		Index:       3,
	}
}

func TestParseDepositEvent(t *testing.T) {
	contract := newDepositContract(t)
	amount, _ := new(big.Int).SetString("1500000000000000000", 10)

	event, err := contract.ParseEvent(depositLog(t, contract, alice, amount))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, DepositEvent, event.Name)
	assert.Equal(t, uint64(12), event.BlockNumber)
	assert.Equal(t, uint(3), event.LogIndex)

	deposit, err := DecodeDeposit(event)
	require.NoError(t, err)
	assert.Equal(t, alice, deposit.Account)
	assert.Equal(t, amount.String(), deposit.Amount.String())
}

func TestParseUnknownEvent(t *testing.T) {
	contract := newDepositContract(t)

	event, err := contract.ParseEvent(types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
	require.NoError(t, err)
	assert.Nil(t, event)

	_, err = contract.ParseEvent(types.Log{})
	assert.Error(t, err)
}

func TestDecodeDepositRejectsOtherEvents(t *testing.T) {
	_, err := DecodeDeposit(&Event{Name: "Transfer"})
	assert.Error(t, err)
	_, err = DecodeDeposit(nil)
	assert.Error(t, err)
}

func TestLoadABIFromCompiledOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "Deposit.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"abi":`+depositABI+`}`), 0o600))

	contract, err := NewContract("deposit", config.ContractConfig{Address: depositAddress.Hex(), ABIPath: file}, 1)
	require.NoError(t, err)
	assert.Contains(t, contract.GetABI().Events, DepositEvent)
}

func TestNewContractRejectsBadAddress(t *testing.T) {
	_, err := NewContract("deposit", config.ContractConfig{Address: "nope"}, 1)
	assert.Error(t, err)
}

func TestManagerSkipsDisabledContracts(t *testing.T) {
	manager, err := NewManagerWithClient(config.ChainConfig{
		Contracts: map[string]config.ContractConfig{
			"deposit": {Address: depositAddress.Hex(), Enabled: true},
			"legacy":  {Address: alice.Hex(), Enabled: false},
		},
	}, nil)
	require.NoError(t, err)

	contracts := manager.GetContracts()
	require.Len(t, contracts, 1)
	assert.Equal(t, "deposit", contracts[0].GetName())

	_, err = manager.GetContract("legacy")
	assert.Error(t, err)
}
