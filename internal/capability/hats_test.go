package capability

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// 任何调用都返回 uint256(1)
	trueCode = common.FromHex("0x600160005260206000f3")
	// 任何调用都返回 uint256(0)
	falseCode = common.FromHex("0x600060005260206000f3")
	// 任何调用都 revert
	revertCode = common.FromHex("0x60006000fd")

	trueHats   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	falseHats  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	revertHats = common.HexToAddress("0x00000000000000000000000000000000000000fd")

	wearer = common.HexToAddress("0x000000000000000000000000000000000000000a")
	next   = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

const simulatedChainId = 1337

func newSimulatedHats(t *testing.T) (*backends.SimulatedBackend, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sim := backends.NewSimulatedBackend(core.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: balance},
		trueHats:                              {Code: trueCode, Balance: new(big.Int)},
		falseHats:                             {Code: falseCode, Balance: new(big.Int)},
		revertHats:                            {Code: revertCode, Balance: new(big.Int)},
	}, 30_000_000)
	t.Cleanup(func() { _ = sim.Close() })

	return sim, hex.EncodeToString(crypto.FromECDSA(key))
}

func TestHatsGateReadsWearerAndEligibility(t *testing.T) {
	sim, _ := newSimulatedHats(t)
	ctx := context.Background()
	role := big.NewInt(7)

	yes, err := NewHatsGate(sim, trueHats, "", simulatedChainId)
	require.NoError(t, err)
	ok, err := yes.IsWearer(ctx, wearer, role)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = yes.IsEligible(ctx, next, role)
	require.NoError(t, err)
	assert.True(t, ok)

	no, err := NewHatsGate(sim, falseHats, "", simulatedChainId)
	require.NoError(t, err)
	ok, err = no.IsWearer(ctx, wearer, role)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := NewHatsGate(sim, common.HexToAddress("0x0000000000000000000000000000000000000123"), "", simulatedChainId)
	require.NoError(t, err)
	_, err = missing.IsWearer(ctx, wearer, role)
	assert.Error(t, err)
}

func TestHatsGateTransferRequiresKey(t *testing.T) {
	sim, _ := newSimulatedHats(t)
	gate, err := NewHatsGate(sim, trueHats, "", simulatedChainId)
	require.NoError(t, err)

	assert.Error(t, gate.TransferRole(context.Background(), big.NewInt(7), wearer, next))

	_, err = NewHatsGate(sim, trueHats, "not-a-key", simulatedChainId)
	assert.Error(t, err)
}

func TestHatsGateTransferMinesTransaction(t *testing.T) {
	sim, key := newSimulatedHats(t)
	gate, err := NewHatsGate(sim, trueHats, "0x"+key, simulatedChainId)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- gate.TransferRole(context.Background(), big.NewInt(7), wearer, next)
	}()

	var transferErr error
	require.Eventually(t, func() bool {
		sim.Commit()
		select {
		case transferErr = <-done:
			return true
		default:
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
	assert.NoError(t, transferErr)
}

func TestHatsGateTransferReverted(t *testing.T) {
	sim, key := newSimulatedHats(t)
	gate, err := NewHatsGate(sim, revertHats, key, simulatedChainId)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, gate.TransferRole(ctx, big.NewInt(7), wearer, next))
}
