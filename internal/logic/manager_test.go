package logic

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/bank"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/capability"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	recipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	supplierA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	supplierB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	supplierC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	supplierD = common.HexToAddress("0x000000000000000000000000000000000000000d")
	supplierE = common.HexToAddress("0x000000000000000000000000000000000000000e")
)

// milli 以 0.001 ether 为单位
func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}

// pct 以 1% 为单位
func pct(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e16))
}

func assertAmount(t *testing.T, want, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	assert.Equal(t, want.String(), got.String(), msgAndArgs...)
}

type recordingSink struct {
	events []model.LedgerEvent
}

func (r *recordingSink) Publish(events ...model.LedgerEvent) {
	r.events = append(r.events, events...)
}

func (r *recordingSink) kinds() []model.EventKind {
	out := make([]model.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// hookedLedger 在转账前回调，用于模拟转账期间的重入和失败
type hookedLedger struct {
	*bank.Ledger
	before func([]bank.Transfer) error
}

func (h *hookedLedger) Transfer(ctx context.Context, transfers ...bank.Transfer) error {
	if h.before != nil {
		if err := h.before(transfers); err != nil {
			return err
		}
	}
	return h.Ledger.Transfer(ctx, transfers...)
}

type fixture struct {
	ctx     context.Context
	ledger  *hookedLedger
	sink    *recordingSink
	manager *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	l := &hookedLedger{Ledger: bank.NewLedger()}
	for _, a := range []common.Address{recipient, supplierA, supplierB, supplierC, supplierD, supplierE} {
		require.NoError(t, l.Credit(a, milli(10_000)))
	}
	sink := &recordingSink{}
	opts = append(opts, WithEventSink(sink))
	return &fixture{
		ctx:     context.Background(),
		ledger:  l,
		sink:    sink,
		manager: NewManager(l, opts...),
	}
}

func (f *fixture) register(t *testing.T, threshold *big.Int) common.Hash {
	t.Helper()
	id, err := f.manager.RegisterProject(f.ctx, owner, ProjectRequest{
		Threshold:   threshold,
		Seed:        big.NewInt(42),
		Description: "community garden",
		Metadata:    model.Metadata{Protocol: 1, Pointer: "ipfs://garden"},
		Recipient:   recipient,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) supply(t *testing.T, id common.Hash, who common.Address, amount *big.Int) *SupplyReceipt {
	t.Helper()
	receipt, err := f.manager.SupplyProject(f.ctx, who, id, amount)
	require.NoError(t, err)
	return receipt
}

// funded 1.0 的目标，A/B/C/E 各出 0.25，D 出资后撤回
func (f *fixture) funded(t *testing.T) common.Hash {
	t.Helper()
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(250))
	f.supply(t, id, supplierB, milli(250))
	f.supply(t, id, supplierC, milli(250))
	f.supply(t, id, supplierD, milli(150))
	_, err := f.manager.RevokeProjectSupply(f.ctx, supplierD, id)
	require.NoError(t, err)
	receipt := f.supply(t, id, supplierE, milli(250))
	require.True(t, receipt.Finalized)
	return id
}

// acceptedHalves 提议两个 50% 的里程碑并由 A/B/C 接受
func (f *fixture) acceptedHalves(t *testing.T, id common.Hash) {
	t.Helper()
	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{
		{AmountPercentage: pct(50), Metadata: model.Metadata{Protocol: 1, Pointer: "m0"}},
		{AmountPercentage: pct(50), Metadata: model.Metadata{Protocol: 1, Pointer: "m1"}},
	})
	require.NoError(t, err)
	for _, e := range []common.Address{supplierA, supplierB, supplierC} {
		_, err := f.manager.ReviewOfferedMilestones(f.ctx, e, id, recipient, model.DecisionAccept)
		require.NoError(t, err)
	}
}

func TestRegisterProject(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, milli(1000))
	second := f.register(t, milli(1000))
	assert.NotEqual(t, first, second, "same seed and registrant must still give distinct ids")

	project, err := f.manager.GetProject(first)
	require.NoError(t, err)
	assert.Equal(t, owner, project.Owner)
	assert.Equal(t, recipient, project.Recipient)
	assert.False(t, project.Finalized())
	assert.Equal(t, projectId(big.NewInt(42), owner, 1), first)

	all := f.manager.GetProjects()
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].Id)
	assert.Equal(t, second, all[1].Id)
}

func TestRegisterProjectValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  ProjectRequest
		want error
	}{
		{"zero threshold", ProjectRequest{Threshold: big.NewInt(0), Recipient: recipient}, ErrInvalidThreshold},
		{"negative threshold", ProjectRequest{Threshold: big.NewInt(-1), Recipient: recipient}, ErrInvalidThreshold},
		{"nil threshold", ProjectRequest{Recipient: recipient}, ErrInvalidThreshold},
		{"no recipient", ProjectRequest{Threshold: big.NewInt(1)}, ErrInvalidRecipient},
		{"negative seed", ProjectRequest{Threshold: big.NewInt(1), Seed: big.NewInt(-1), Recipient: recipient}, ErrInvalidSeed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.RegisterProject(f.ctx, owner, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, f.manager.GetProjects())
}

func TestRegisterProjectRequiresRegistrarRole(t *testing.T) {
	role := big.NewInt(7)
	gate := capability.NewStaticGate()
	gate.Grant(role, owner)
	f := newFixture(t, WithGate(gate, role))

	_, err := f.manager.RegisterProject(f.ctx, supplierA, ProjectRequest{Threshold: big.NewInt(1), Recipient: recipient})
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	assert.ErrorIs(t, err, ErrAuthorization)

	f.register(t, milli(1))

	require.NoError(t, f.manager.TransferRegistrarRole(f.ctx, owner, supplierA))
	_, err = f.manager.RegisterProject(f.ctx, owner, ProjectRequest{Threshold: big.NewInt(1), Recipient: recipient})
	assert.ErrorIs(t, err, ErrCapabilityDenied)
	_, err = f.manager.RegisterProject(f.ctx, supplierA, ProjectRequest{Threshold: big.NewInt(1), Recipient: recipient})
	assert.NoError(t, err)
}

func TestTransferRegistrarRoleWithoutRole(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.manager.TransferRegistrarRole(f.ctx, owner, supplierA), ErrRoleNotConfigured)
}

func TestFundingScenario(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	project, err := f.manager.GetProject(id)
	require.NoError(t, err)

	for _, s := range []common.Address{supplierA, supplierB, supplierC} {
		assert.False(t, f.supply(t, id, s, milli(250)).Finalized)
	}
	supply, err := f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(750), supply.Has)
	assertAmount(t, milli(1000), supply.Need)

	f.supply(t, id, supplierD, milli(150))
	refund, err := f.manager.RevokeProjectSupply(f.ctx, supplierD, id)
	require.NoError(t, err)
	assertAmount(t, milli(150), refund)
	assertAmount(t, milli(10_000), f.ledger.BalanceOf(supplierD))

	supply, err = f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(750), supply.Has)
	_, err = f.manager.GetProjectSupplierById(id, supplierD)
	assert.ErrorIs(t, err, ErrSupplierNotFound)
	assertAmount(t, milli(750), f.ledger.BalanceOf(project.Anchor))

	receipt := f.supply(t, id, supplierE, milli(250))
	assert.True(t, receipt.Finalized)
	assert.Equal(t, uint64(1), receipt.StrategyId)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assertAmount(t, milli(1000), strategy.OriginalEscrow)
	assertAmount(t, milli(1000), strategy.Escrow)
	var electors []common.Address
	for _, e := range strategy.Electors {
		electors = append(electors, e.Address)
	}
	assert.Equal(t, []common.Address{supplierA, supplierB, supplierC, supplierE}, electors)

	assertAmount(t, milli(1000), f.ledger.BalanceOf(strategy.Address))
	assert.Zero(t, f.ledger.BalanceOf(project.Anchor).Sign())

	supply, err = f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(1000), supply.Has)

	finalized := 0
	for _, k := range f.sink.kinds() {
		if k == model.EventPoolFinalized {
			finalized++
		}
	}
	assert.Equal(t, 1, finalized)
}

func TestSupplyAfterFinalization(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)

	_, err := f.manager.SupplyProject(f.ctx, supplierD, id, milli(100))
	assert.ErrorIs(t, err, ErrPoolAlreadyFinalized)
	_, err = f.manager.SupplyProject(f.ctx, supplierA, id, milli(100))
	assert.ErrorIs(t, err, ErrPoolAlreadyFinalized)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assert.Len(t, strategy.Electors, 4)
	assertAmount(t, milli(1000), strategy.OriginalEscrow)

	_, err = f.manager.RevokeProjectSupply(f.ctx, supplierA, id)
	assert.ErrorIs(t, err, ErrNothingToRevoke)
}

func TestSupplyCrossingIncludesLastContribution(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(600))
	receipt := f.supply(t, id, supplierB, milli(700))
	require.True(t, receipt.Finalized)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assertAmount(t, milli(1300), strategy.OriginalEscrow)
	assertAmount(t, milli(700), strategy.Electors[1].Weight)
}

func TestSupplyValidation(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))

	_, err := f.manager.SupplyProject(f.ctx, supplierA, id, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.manager.SupplyProject(f.ctx, supplierA, common.HexToHash("0x01"), milli(1))
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	poor := common.HexToAddress("0x0000000000000000000000000000000000000123")
	_, err = f.manager.SupplyProject(f.ctx, poor, id, milli(1))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	suppliers, err := f.manager.GetProjectSuppliers(id)
	require.NoError(t, err)
	assert.Empty(t, suppliers)
}

func TestRepeatSupplyAccumulates(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(100))
	f.supply(t, id, supplierB, milli(100))
	f.supply(t, id, supplierA, milli(50))

	suppliers, err := f.manager.GetProjectSuppliers(id)
	require.NoError(t, err)
	require.Len(t, suppliers, 2)
	assert.Equal(t, supplierA, suppliers[0].Supplier)
	assertAmount(t, milli(150), suppliers[0].Amount)
	assert.Equal(t, uint64(0), suppliers[0].Index)
}

func TestRevokeRemovesSupplier(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(100))
	f.supply(t, id, supplierB, milli(200))
	f.supply(t, id, supplierC, milli(300))

	_, err := f.manager.RevokeProjectSupply(f.ctx, supplierB, id)
	require.NoError(t, err)

	suppliers, err := f.manager.GetProjectSuppliers(id)
	require.NoError(t, err)
	require.Len(t, suppliers, 2)
	assert.Equal(t, supplierA, suppliers[0].Supplier)
	assert.Equal(t, supplierC, suppliers[1].Supplier)

	supply, err := f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(400), supply.Has)

	_, err = f.manager.RevokeProjectSupply(f.ctx, supplierB, id)
	assert.ErrorIs(t, err, ErrNothingToRevoke)

	// 撤回后重新出资视为新的出资
	f.supply(t, id, supplierB, milli(50))
	c, err := f.manager.GetProjectSupplierById(id, supplierB)
	require.NoError(t, err)
	assertAmount(t, milli(50), c.Amount)
	assert.Equal(t, uint64(3), c.Index)
}

func TestOfferMilestones(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))

	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(10)}})
	assert.ErrorIs(t, err, ErrPoolNotFinalized)

	f.supply(t, id, supplierA, milli(1000))

	_, err = f.manager.OfferMilestones(f.ctx, supplierA, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(10)}})
	assert.ErrorIs(t, err, ErrNotRecipient)
	_, err = f.manager.OfferMilestones(f.ctx, recipient, id, recipient, nil)
	assert.ErrorIs(t, err, ErrInvalidMilestones)
	_, err = f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: big.NewInt(0)}})
	assert.ErrorIs(t, err, ErrInvalidMilestones)

	created, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{
		{AmountPercentage: pct(60)},
		{AmountPercentage: pct(30)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 1, created[1].Index)

	_, err = f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{
		{AmountPercentage: pct(5)},
		{AmountPercentage: pct(6)},
	})
	assert.ErrorIs(t, err, ErrPercentageOverflow)

	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	assert.Len(t, milestones, 2, "rejected offer must not append anything")

	_, err = f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(10)}})
	require.NoError(t, err)

	total := new(big.Int)
	milestones, err = f.manager.GetMilestones(id)
	require.NoError(t, err)
	for _, m := range milestones {
		total.Add(total, m.AmountPercentage)
		assert.Equal(t, model.MilestoneStatusOffered, m.Status)
	}
	assertAmount(t, model.PercentageBase, total)
}

func TestReviewOfferedMilestonesScenario(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)

	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{
		{AmountPercentage: pct(50)},
		{AmountPercentage: pct(50)},
	})
	require.NoError(t, err)

	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierD, id, recipient, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrNotAnElector)

	for _, e := range []common.Address{supplierA, supplierB} {
		result, err := f.manager.ReviewOfferedMilestones(f.ctx, e, id, recipient, model.DecisionAccept)
		require.NoError(t, err)
		assert.Empty(t, result.Transitions)
	}
	offered, err := f.manager.GetOfferedMilestones(id)
	require.NoError(t, err)
	assert.Len(t, offered, 2)

	result, err := f.manager.ReviewOfferedMilestones(f.ctx, supplierC, id, recipient, model.DecisionAccept)
	require.NoError(t, err)
	require.Len(t, result.Transitions, 2)

	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	for _, m := range milestones {
		assert.Equal(t, model.MilestoneStatusAccepted, m.Status)
	}

	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierE, id, recipient, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrNoOfferedMilestones)
}

func TestReviewOfferedMilestonesTie(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)

	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(40)}})
	require.NoError(t, err)

	for _, e := range []common.Address{supplierA, supplierB} {
		_, err := f.manager.ReviewOfferedMilestones(f.ctx, e, id, recipient, model.DecisionAccept)
		require.NoError(t, err)
	}
	for _, e := range []common.Address{supplierC, supplierE} {
		result, err := f.manager.ReviewOfferedMilestones(f.ctx, e, id, recipient, model.DecisionReject)
		require.NoError(t, err)
		assert.Empty(t, result.Transitions)
	}

	offered, err := f.manager.GetOfferedMilestones(id)
	require.NoError(t, err)
	assert.Len(t, offered, 1, "2 of 4 is a tie and must not transition")
}

func TestReviewOfferedVoteChange(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)

	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(40)}})
	require.NoError(t, err)

	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierA, id, recipient, model.DecisionAccept)
	require.NoError(t, err)
	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierA, id, recipient, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierA, id, recipient, model.DecisionReject)
	require.NoError(t, err)

	votes, err := f.manager.GetMilestoneVotes(id, 0)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, model.DecisionReject, votes[0].Decision)

	_, err = f.manager.ReviewOfferedMilestones(f.ctx, supplierA, id, recipient, model.DecisionNone)
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestSubmitAndCompleteMilestone(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)
	f.acceptedHalves(t, id)

	proof := model.Metadata{Protocol: 1, Pointer: "ipfs://proof"}
	assert.ErrorIs(t, f.manager.SubmitMilestone(f.ctx, supplierA, id, recipient, 0, proof), ErrNotRecipient)
	assert.ErrorIs(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 5, proof), ErrIndexOutOfRange)
	assert.ErrorIs(t, f.manager.SubmitMilestone(f.ctx, recipient, id, supplierA, 0, proof), ErrInvalidRecipient)
	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, proof))
	assert.ErrorIs(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, proof), ErrInvalidMilestoneState)

	votes, err := f.manager.GetMilestoneVotes(id, 0)
	require.NoError(t, err)
	assert.Empty(t, votes, "offer phase votes must not carry over")

	_, err = f.manager.ReviewSubmitedMilestone(f.ctx, supplierA, id, recipient, 1, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrInvalidMilestoneState)

	before := f.ledger.BalanceOf(recipient)
	for _, e := range []common.Address{supplierA, supplierB} {
		result, err := f.manager.ReviewSubmitedMilestone(f.ctx, e, id, recipient, 0, model.DecisionAccept)
		require.NoError(t, err)
		assert.Empty(t, result.Transitions)
	}
	result, err := f.manager.ReviewSubmitedMilestone(f.ctx, supplierC, id, recipient, 0, model.DecisionAccept)
	require.NoError(t, err)
	require.Len(t, result.Transitions, 1)
	assertAmount(t, milli(500), result.Transitions[0].Payout)

	assertAmount(t, new(big.Int).Add(before, milli(500)), f.ledger.BalanceOf(recipient))

	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusCompleted, milestones[0].Status)
	assert.Equal(t, proof, milestones[0].Metadata)
	assert.Equal(t, model.MilestoneStatusAccepted, milestones[1].Status)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assertAmount(t, milli(500), strategy.Escrow)
	assertAmount(t, milli(500), strategy.Distributed)
	assertAmount(t, milli(500), f.ledger.BalanceOf(strategy.Address))

	_, err = f.manager.ReviewSubmitedMilestone(f.ctx, supplierE, id, recipient, 0, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrInvalidMilestoneState)

	// 第二个里程碑放款仍按原始托管总额计算
	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 1, proof))
	for _, e := range []common.Address{supplierA, supplierB, supplierE} {
		_, err := f.manager.ReviewSubmitedMilestone(f.ctx, e, id, recipient, 1, model.DecisionAccept)
		require.NoError(t, err)
	}
	strategy, err = f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assert.Zero(t, strategy.Escrow.Sign())
	assertAmount(t, milli(1000), strategy.Distributed)
	assert.Empty(t, f.manager.Audit().Violations)
}

func TestSubmissionRejectedReturnsToAccepted(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)
	f.acceptedHalves(t, id)

	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, model.Metadata{}))
	for _, e := range []common.Address{supplierA, supplierB, supplierC} {
		_, err := f.manager.ReviewSubmitedMilestone(f.ctx, e, id, recipient, 0, model.DecisionReject)
		require.NoError(t, err)
	}

	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusAccepted, milestones[0].Status)

	// 可以重新提交，上一轮投票清零
	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, model.Metadata{Pointer: "v2"}))
	votes, err := f.manager.GetMilestoneVotes(id, 0)
	require.NoError(t, err)
	assert.Empty(t, votes)
	assert.Contains(t, f.sink.kinds(), model.EventSubmissionRejected)
}

func TestRejectedMilestoneRefund(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(500))
	f.supply(t, id, supplierB, milli(300))
	f.supply(t, id, supplierC, milli(200))

	_, err := f.manager.OfferMilestones(f.ctx, recipient, id, recipient, []model.MilestoneOffer{{AmountPercentage: pct(40)}})
	require.NoError(t, err)

	_, err = f.manager.ClaimRefund(f.ctx, supplierA, id)
	assert.ErrorIs(t, err, ErrNothingToRefund)

	for _, e := range []common.Address{supplierA, supplierB} {
		_, err := f.manager.ReviewOfferedMilestones(f.ctx, e, id, recipient, model.DecisionReject)
		require.NoError(t, err)
	}
	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusRejected, milestones[0].Status)

	before := f.ledger.BalanceOf(supplierB)
	refund, err := f.manager.ClaimRefund(f.ctx, supplierB, id)
	require.NoError(t, err)
	assertAmount(t, milli(120), refund)
	assertAmount(t, new(big.Int).Add(before, milli(120)), f.ledger.BalanceOf(supplierB))

	_, err = f.manager.ClaimRefund(f.ctx, supplierB, id)
	assert.ErrorIs(t, err, ErrNothingToRefund)
	_, err = f.manager.ClaimRefund(f.ctx, supplierD, id)
	assert.ErrorIs(t, err, ErrNotAnElector)

	refund, err = f.manager.ClaimRefund(f.ctx, supplierA, id)
	require.NoError(t, err)
	assertAmount(t, milli(200), refund)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assertAmount(t, milli(320), strategy.Refunded)
	assertAmount(t, milli(680), strategy.Escrow)
	assert.Empty(t, f.manager.Audit().Violations)
}

func TestSendTokenOfThanks(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(750))
	f.supply(t, id, supplierA, milli(250))
	f.supply(t, id, supplierB, milli(250))
	require.True(t, f.supply(t, id, supplierC, milli(250)).Finalized)

	balances := map[common.Address]*big.Int{}
	for _, e := range []common.Address{supplierA, supplierB, supplierC} {
		balances[e] = f.ledger.BalanceOf(e)
	}

	_, err := f.manager.SendTokenOfThanksToSuppliers(f.ctx, supplierA, id, milli(250))
	assert.ErrorIs(t, err, ErrNotRecipient)

	shares, err := f.manager.SendTokenOfThanksToSuppliers(f.ctx, recipient, id, milli(250))
	require.NoError(t, err)
	require.Len(t, shares, 3)

	want := []string{"83333333333333333", "83333333333333333", "83333333333333334"}
	total := new(big.Int)
	for i, sh := range shares {
		assert.Equal(t, want[i], sh.Amount.String())
		total.Add(total, sh.Amount)
		got := new(big.Int).Sub(f.ledger.BalanceOf(sh.Account), balances[sh.Account])
		assertAmount(t, sh.Amount, got)
	}
	assertAmount(t, milli(250), total)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	assertAmount(t, milli(750), strategy.Escrow, "thanks must not touch escrow")
}

func TestSendTokenOfThanksProRata(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(750))
	f.supply(t, id, supplierB, milli(250))

	shares, err := f.manager.SendTokenOfThanksToSuppliers(f.ctx, recipient, id, milli(100))
	require.NoError(t, err)
	assertAmount(t, milli(75), shares[0].Amount)
	assertAmount(t, milli(25), shares[1].Amount)
}

func TestOperationInProgressGuard(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	other := f.register(t, milli(1000))

	var nested []error
	f.ledger.before = func([]bank.Transfer) error {
		f.ledger.before = nil
		_, err := f.manager.SupplyProject(f.ctx, supplierB, id, milli(100))
		nested = append(nested, err)
		_, err = f.manager.GetProjectSupply(id)
		nested = append(nested, err)
		_, err = f.manager.RevokeProjectSupply(f.ctx, supplierA, id)
		nested = append(nested, err)

		_, err = f.manager.SupplyProject(f.ctx, supplierB, other, milli(100))
		nested = append(nested, err)
		return nil
	}

	f.supply(t, id, supplierA, milli(100))

	require.Len(t, nested, 4)
	for _, err := range nested[:3] {
		assert.ErrorIs(t, err, ErrOperationInProgress)
	}
	assert.NoError(t, nested[3], "other projects are not blocked")

	supply, err := f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(100), supply.Has)
}

func TestPayoutTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)
	f.acceptedHalves(t, id)
	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, model.Metadata{}))
	for _, e := range []common.Address{supplierA, supplierB} {
		_, err := f.manager.ReviewSubmitedMilestone(f.ctx, e, id, recipient, 0, model.DecisionAccept)
		require.NoError(t, err)
	}

	events := len(f.sink.events)
	f.ledger.before = func([]bank.Transfer) error { return errors.New("ledger offline") }
	_, err := f.manager.ReviewSubmitedMilestone(f.ctx, supplierC, id, recipient, 0, model.DecisionAccept)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrResource)
	assert.Len(t, f.sink.events, events, "failed operation must not publish")

	milestones, err := f.manager.GetMilestones(id)
	require.NoError(t, err)
	assert.Equal(t, model.MilestoneStatusSubmitted, milestones[0].Status)
	votes, err := f.manager.GetMilestoneVotes(id, 0)
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	f.ledger.before = nil
	result, err := f.manager.ReviewSubmitedMilestone(f.ctx, supplierC, id, recipient, 0, model.DecisionAccept)
	require.NoError(t, err)
	require.Len(t, result.Transitions, 1)
	assertAmount(t, milli(500), result.Transitions[0].Payout)
}

func TestRevokeTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))
	f.supply(t, id, supplierA, milli(100))
	f.supply(t, id, supplierB, milli(200))

	f.ledger.before = func([]bank.Transfer) error { return errors.New("ledger offline") }
	_, err := f.manager.RevokeProjectSupply(f.ctx, supplierA, id)
	assert.ErrorIs(t, err, ErrTransferFailed)
	f.ledger.before = nil

	suppliers, err := f.manager.GetProjectSuppliers(id)
	require.NoError(t, err)
	require.Len(t, suppliers, 2)
	assert.Equal(t, supplierA, suppliers[0].Supplier)
	supply, err := f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assertAmount(t, milli(300), supply.Has)
}

func TestEventsAreSequenced(t *testing.T) {
	f := newFixture(t)
	f.funded(t)

	assert.Equal(t, []model.EventKind{
		model.EventProjectRegistered,
		model.EventProjectSupplied,
		model.EventProjectSupplied,
		model.EventProjectSupplied,
		model.EventProjectSupplied,
		model.EventSupplyRevoked,
		model.EventProjectSupplied,
		model.EventPoolFinalized,
	}, f.sink.kinds())
	for i, e := range f.sink.events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}

func TestAuditDetectsDrift(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)
	assert.Empty(t, f.manager.Audit().Violations)

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Ledger.Transfer(f.ctx, bank.Transfer{From: strategy.Address, To: supplierA, Amount: milli(1)}))

	report := f.manager.Audit()
	assert.Equal(t, 1, report.Strategies)
	assert.Len(t, report.Violations, 1)
}

func TestInternalAccountsCannotMoveValue(t *testing.T) {
	f := newFixture(t)
	id := f.funded(t)
	other := f.register(t, milli(1000))

	strategy, err := f.manager.GetProjectStrategy(id)
	require.NoError(t, err)
	project, err := f.manager.GetProject(id)
	require.NoError(t, err)
	pending, err := f.manager.GetProject(other)
	require.NoError(t, err)

	for _, account := range []common.Address{strategy.Address, project.Anchor, pending.Anchor} {
		_, err = f.manager.SupplyProject(f.ctx, account, other, milli(1))
		assert.ErrorIs(t, err, ErrReservedAccount)
		assert.ErrorIs(t, err, ErrAuthorization)
	}

	_, err = f.manager.RevokeProjectSupply(f.ctx, strategy.Address, other)
	assert.ErrorIs(t, err, ErrReservedAccount)
	_, err = f.manager.SendTokenOfThanksToSuppliers(f.ctx, strategy.Address, id, milli(1))
	assert.ErrorIs(t, err, ErrReservedAccount)
	_, err = f.manager.ClaimRefund(f.ctx, strategy.Address, id)
	assert.ErrorIs(t, err, ErrReservedAccount)

	_, err = f.manager.RegisterProject(f.ctx, owner, ProjectRequest{Threshold: milli(1), Recipient: strategy.Address})
	assert.ErrorIs(t, err, ErrReservedAccount)

	assertAmount(t, milli(1000), f.manager.BalanceOf(strategy.Address))
	assert.Empty(t, f.manager.Audit().Violations)

	// 托管仍可正常放款
	f.acceptedHalves(t, id)
	require.NoError(t, f.manager.SubmitMilestone(f.ctx, recipient, id, recipient, 0, model.Metadata{}))
	var result *ReviewResult
	for _, e := range []common.Address{supplierA, supplierB, supplierC} {
		result, err = f.manager.ReviewSubmitedMilestone(f.ctx, e, id, recipient, 0, model.DecisionAccept)
		require.NoError(t, err)
	}
	require.Len(t, result.Transitions, 1)
	assertAmount(t, milli(500), result.Transitions[0].Payout)
}

func TestEventSequenceContinuesFromSeed(t *testing.T) {
	f := newFixture(t, WithEventSequence(41))
	f.register(t, milli(1))
	f.register(t, milli(1))

	require.Len(t, f.sink.events, 2)
	assert.Equal(t, uint64(42), f.sink.events[0].Sequence)
	assert.Equal(t, uint64(43), f.sink.events[1].Sequence)
}

// stubGate 记录 TransferRole 调用
type stubGate struct {
	wearer    bool
	eligible  bool
	err       error
	transfers int
}

func (g *stubGate) IsEligible(context.Context, common.Address, *big.Int) (bool, error) {
	return g.eligible, g.err
}

func (g *stubGate) IsWearer(context.Context, common.Address, *big.Int) (bool, error) {
	return g.wearer, g.err
}

func (g *stubGate) TransferRole(context.Context, *big.Int, common.Address, common.Address) error {
	g.transfers++
	return nil
}

func TestTransferRegistrarRoleChecksGateFirst(t *testing.T) {
	cases := []struct {
		name string
		gate *stubGate
		ok   bool
	}{
		{"caller not wearer", &stubGate{wearer: false, eligible: true}, false},
		{"target not eligible", &stubGate{wearer: true, eligible: false}, false},
		{"gate unavailable", &stubGate{wearer: true, eligible: true, err: errors.New("rpc down")}, false},
		{"allowed", &stubGate{wearer: true, eligible: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, WithGate(tc.gate, big.NewInt(7)))
			err := f.manager.TransferRegistrarRole(f.ctx, owner, supplierA)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, 1, tc.gate.transfers)
				return
			}
			assert.ErrorIs(t, err, ErrCapabilityDenied)
			assert.Zero(t, tc.gate.transfers)
		})
	}
}

func TestTransferPanicReleasesLock(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, milli(1000))

	f.ledger.before = func([]bank.Transfer) error { panic("ledger crashed") }
	assert.Panics(t, func() {
		_, _ = f.manager.SupplyProject(f.ctx, supplierA, id, milli(100))
	})
	f.ledger.before = nil

	supply, err := f.manager.GetProjectSupply(id)
	require.NoError(t, err)
	assert.Zero(t, supply.Has.Sign())
	f.supply(t, id, supplierA, milli(100))
}
