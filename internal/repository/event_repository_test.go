package repository

import (
	"math/big"
	"testing"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventModelRoundTrip(t *testing.T) {
	amount, _ := new(big.Int).SetString("250000000000000000", 10)
	event := model.LedgerEvent{
		Sequence:  43,
		ProjectId: common.HexToHash("0x1234"),
		Kind:      model.EventProjectSupplied,
		Actor:     common.HexToAddress("0x000000000000000000000000000000000000000a"),
		Amount:    amount,
		Milestone: -1,
		Data:      map[string]any{"index": float64(2)},
	}

	row, err := toEventModel(event)
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", row.Amount)
	assert.Equal(t, event.ProjectId.Hex(), row.ProjectId)

	back, err := fromEventModel(row)
	require.NoError(t, err)
	assert.Equal(t, event.Sequence, back.Sequence)
	assert.Equal(t, event.ProjectId, back.ProjectId)
	assert.Equal(t, event.Actor, back.Actor)
	assert.Equal(t, amount.String(), back.Amount.String())
	assert.Equal(t, event.Data, back.Data)
}

func TestFromEventModelRejectsBadAmount(t *testing.T) {
	_, err := fromEventModel(model.LedgerEventModel{Sequence: 1, Amount: "1e18"})
	assert.Error(t, err)

	e, err := fromEventModel(model.LedgerEventModel{Sequence: 2, Milestone: 0})
	require.NoError(t, err)
	assert.Nil(t, e.Amount)
	assert.Nil(t, e.Data)
}
