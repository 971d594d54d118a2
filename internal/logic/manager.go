package logic

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/bank"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/capability"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// ValueLedger 账户余额账本，由 bank.Ledger 实现
type ValueLedger interface {
	Transfer(ctx context.Context, transfers ...bank.Transfer) error
	BalanceOf(account common.Address) *big.Int
}

// EventSink 账本事件接收方，在持有管理器锁时调用，不能回调管理器
type EventSink interface {
	Publish(events ...model.LedgerEvent)
}

// Option 管理器选项
type Option func(*Manager)

// WithGate 设置权限网关和注册项目所需的角色，role 为 nil 时任何人都可以注册
func WithGate(gate capability.Gate, role *big.Int) Option {
	return func(m *Manager) {
		m.gate = gate
		m.registrarRole = role
	}
}

// WithEventSequence 从已持久化的最大序号继续编号
func WithEventSequence(last uint64) Option {
	return func(m *Manager) {
		m.eventSeq = last
	}
}

// WithEventSink 添加事件接收方
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) {
		m.sinks = append(m.sinks, sink)
	}
}

// SupplyReceipt 出资结果
type SupplyReceipt struct {
	Contribution model.Contribution `json:"contribution"`
	Finalized    bool               `json:"finalized"`
	StrategyId   uint64             `json:"strategy_id,omitempty"`
}

// Manager 众筹账本的唯一入口
//
// 所有操作由 mu 串行化。涉及转账的操作在转账期间释放 mu，并把项目标记为
// 进行中，此时对同一项目的任何调用都返回 ErrOperationInProgress。
type Manager struct {
	mu       sync.Mutex
	ledger   ValueLedger
	registry *projectRegistry
	pools    map[common.Hash]*fundingPool
	factory  *strategyFactory
	inFlight map[common.Hash]bool
	reserved map[common.Address]bool // 资金池和策略实例的内部账户

	gate          capability.Gate
	registrarRole *big.Int

	sinks    []EventSink
	eventSeq uint64
}

// NewManager 创建管理器
func NewManager(ledger ValueLedger, opts ...Option) *Manager {
	m := &Manager{
		ledger:   ledger,
		registry: newProjectRegistry(),
		pools:    make(map[common.Hash]*fundingPool),
		factory:  newStrategyFactory(),
		inFlight: make(map[common.Hash]bool),
		reserved: make(map[common.Address]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// operation 一次账本操作
//
// apply 在转账前执行记账，undo 在转账失败时回滚，commit 在转账成功后执行。
type operation struct {
	projectId common.Hash
	transfers []bank.Transfer
	apply     func()
	undo      func()
	commit    func()
	events    []model.LedgerEvent
}

func (op *operation) emit(kind model.EventKind, actor common.Address, amount *big.Int, milestone int, data map[string]any) {
	ev := model.LedgerEvent{
		ProjectId: op.projectId,
		Kind:      kind,
		Actor:     actor,
		Milestone: milestone,
		Data:      data,
	}
	if amount != nil {
		ev.Amount = new(big.Int).Set(amount)
	}
	op.events = append(op.events, ev)
}

// execute 调用时必须持有 mu
func (m *Manager) execute(ctx context.Context, op *operation) error {
	if op.apply != nil {
		op.apply()
	}

	if len(op.transfers) > 0 {
		if err := m.transfer(ctx, op); err != nil {
			if op.undo != nil {
				op.undo()
			}
			logger.Error("Transfer for project %s failed: %v", op.projectId.Hex(), err)
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	if op.commit != nil {
		op.commit()
	}
	m.publish(op.events...)
	return nil
}

// transfer 转账期间释放 mu，返回前重新加锁
func (m *Manager) transfer(ctx context.Context, op *operation) error {
	m.inFlight[op.projectId] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, op.projectId)
	}()
	return m.ledger.Transfer(ctx, op.transfers...)
}

// checkAccount 内部账户不能作为外部调用者
func (m *Manager) checkAccount(account common.Address) error {
	if m.reserved[account] {
		return ErrReservedAccount
	}
	return nil
}

func (m *Manager) publish(events ...model.LedgerEvent) {
	if len(events) == 0 {
		return
	}
	for i := range events {
		m.eventSeq++
		events[i].Sequence = m.eventSeq
	}
	for _, sink := range m.sinks {
		sink.Publish(events...)
	}
}

// guard 项目有进行中的转账时拒绝访问
func (m *Manager) guard(projectId common.Hash) error {
	if m.inFlight[projectId] {
		return ErrOperationInProgress
	}
	return nil
}

func (m *Manager) project(projectId common.Hash) (*model.Project, error) {
	if err := m.guard(projectId); err != nil {
		return nil, err
	}
	return m.registry.get(projectId)
}

// instance 已完成募集项目的策略实例
func (m *Manager) instance(projectId common.Hash) (*model.Project, *strategyInstance, error) {
	project, err := m.project(projectId)
	if err != nil {
		return nil, nil, err
	}
	if !project.Finalized() {
		return nil, nil, ErrPoolNotFinalized
	}
	s, ok := m.factory.get(project.StrategyId)
	if !ok {
		return nil, nil, fmt.Errorf("strategy %d of project %s: %w", project.StrategyId, projectId.Hex(), ErrPoolNotFinalized)
	}
	return project, s, nil
}

func (m *Manager) checkFunds(account common.Address, amount *big.Int) error {
	if m.ledger.BalanceOf(account).Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// RegisterProject 注册项目
func (m *Manager) RegisterProject(ctx context.Context, caller common.Address, req ProjectRequest) (common.Hash, error) {
	if m.gate != nil && m.registrarRole != nil {
		ok, err := m.gate.IsWearer(ctx, caller, m.registrarRole)
		if err != nil {
			logger.Warn("Capability check for %s failed: %v", caller.Hex(), err)
			return common.Hash{}, fmt.Errorf("%w: %v", ErrCapabilityDenied, err)
		}
		if !ok {
			return common.Hash{}, ErrCapabilityDenied
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAccount(req.Recipient); err != nil {
		return common.Hash{}, err
	}
	project, err := m.registry.register(caller, &req)
	if err != nil {
		return common.Hash{}, err
	}
	m.pools[project.Id] = newFundingPool(project.Id)
	m.reserved[project.Anchor] = true
	m.reserved[deriveAccount(project.Id, "strategy")] = true

	op := &operation{projectId: project.Id}
	op.emit(model.EventProjectRegistered, caller, project.Threshold, -1, map[string]any{
		"recipient":   project.Recipient.Hex(),
		"description": project.Description,
		"metadata":    project.Metadata,
	})
	if err := m.execute(ctx, op); err != nil {
		return common.Hash{}, err
	}

	logger.Info("Project %s registered by %s, threshold %s", project.Id.Hex(), caller.Hex(), project.Threshold)
	return project.Id, nil
}

// SupplyProject 出资，累计金额达到目标时完成募集并创建策略实例
func (m *Manager) SupplyProject(ctx context.Context, caller common.Address, projectId common.Hash, amount *big.Int) (*SupplyReceipt, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAccount(caller); err != nil {
		return nil, err
	}
	project, err := m.project(projectId)
	if err != nil {
		return nil, err
	}
	if project.Finalized() {
		return nil, ErrPoolAlreadyFinalized
	}
	if err := m.checkFunds(caller, amount); err != nil {
		return nil, err
	}

	pool := m.pools[projectId]
	projected := pool.projected(amount)
	crossing := projected.Cmp(project.Threshold) >= 0

	op := &operation{
		projectId: projectId,
		transfers: []bank.Transfer{{From: caller, To: project.Anchor, Amount: new(big.Int).Set(amount)}},
	}
	if crossing {
		op.transfers = append(op.transfers, bank.Transfer{
			From:   project.Anchor,
			To:     deriveAccount(projectId, "strategy"),
			Amount: projected,
		})
	}

	receipt := &SupplyReceipt{}
	op.commit = func() {
		c := pool.add(caller, amount)
		receipt.Contribution = c.Clone()
		op.emit(model.EventProjectSupplied, caller, amount, -1, map[string]any{"index": c.Index})

		if !crossing {
			return
		}
		s := m.factory.create(project, pool.electors(), projected)
		_ = m.registry.bind(project, s.id)
		pool.finalize()

		receipt.Finalized = true
		receipt.StrategyId = s.id
		op.emit(model.EventPoolFinalized, caller, projected, -1, map[string]any{
			"strategy_id": s.id,
			"electors":    len(s.electors),
		})
	}

	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}

	if receipt.Finalized {
		logger.Info("Project %s finalized with escrow %s, strategy %d", projectId.Hex(), projected, receipt.StrategyId)
	}
	return receipt, nil
}

// RevokeProjectSupply 完成募集前撤回出资，全额退回
func (m *Manager) RevokeProjectSupply(ctx context.Context, caller common.Address, projectId common.Hash) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAccount(caller); err != nil {
		return nil, err
	}
	project, err := m.project(projectId)
	if err != nil {
		return nil, err
	}
	if project.Finalized() {
		return nil, ErrNothingToRevoke
	}
	pool := m.pools[projectId]
	c, ok := pool.contribution(caller)
	if !ok {
		return nil, ErrNothingToRevoke
	}
	amount := new(big.Int).Set(c.Amount)

	snap := pool.snapshot()
	op := &operation{
		projectId: projectId,
		transfers: []bank.Transfer{{From: project.Anchor, To: caller, Amount: amount}},
		apply:     func() { pool.remove(caller) },
		undo:      func() { pool.restore(snap) },
	}
	op.emit(model.EventSupplyRevoked, caller, amount, -1, nil)

	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}

	logger.Info("Supplier %s revoked %s from project %s", caller.Hex(), amount, projectId.Hex())
	return amount, nil
}

// OfferMilestones 受益人提议里程碑
func (m *Manager) OfferMilestones(ctx context.Context, caller common.Address, projectId common.Hash, recipient common.Address, offers []model.MilestoneOffer) ([]model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	if recipient != s.recipient {
		return nil, ErrInvalidRecipient
	}

	created, err := s.offer(caller, offers)
	if err != nil {
		return nil, err
	}

	op := &operation{projectId: projectId}
	for _, c := range created {
		op.emit(model.EventMilestonesOffered, caller, nil, c.Index, map[string]any{
			"amount_percentage": c.AmountPercentage.String(),
			"metadata":          c.Metadata,
		})
	}
	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}
	return created, nil
}

// ReviewOfferedMilestones 投票人审核所有待审核的里程碑
func (m *Manager) ReviewOfferedMilestones(ctx context.Context, caller common.Address, projectId common.Hash, recipient common.Address, decision model.Decision) (*ReviewResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	if recipient != s.recipient {
		return nil, ErrInvalidRecipient
	}

	result, err := s.reviewOffered(caller, decision)
	if err != nil {
		return nil, err
	}

	op := &operation{projectId: projectId}
	for _, i := range result.Reviewed {
		op.emit(model.EventOfferReviewed, caller, nil, i, map[string]any{"decision": decision.String()})
	}
	for _, t := range result.Transitions {
		kind := model.EventMilestoneAccepted
		if t.To == model.MilestoneStatusRejected {
			kind = model.EventMilestoneRejected
		}
		op.emit(kind, caller, nil, t.Milestone, nil)
	}
	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitMilestone 受益人提交里程碑成果
func (m *Manager) SubmitMilestone(ctx context.Context, caller common.Address, projectId common.Hash, recipient common.Address, index int, metadata model.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return err
	}
	if recipient != s.recipient {
		return ErrInvalidRecipient
	}
	if err := s.submit(caller, index, metadata); err != nil {
		return err
	}

	op := &operation{projectId: projectId}
	op.emit(model.EventMilestoneSubmitted, caller, nil, index, map[string]any{"metadata": metadata})
	return m.execute(ctx, op)
}

// ReviewSubmitedMilestone 投票人验收已提交的里程碑，通过时立即放款给受益人
func (m *Manager) ReviewSubmitedMilestone(ctx context.Context, caller common.Address, projectId common.Hash, recipient common.Address, index int, decision model.Decision) (*ReviewResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	if recipient != s.recipient {
		return nil, ErrInvalidRecipient
	}

	snap := s.snapshot()
	result, err := s.reviewSubmitted(caller, index, decision)
	if err != nil {
		return nil, err
	}

	op := &operation{
		projectId: projectId,
		undo:      func() { s.restore(snap) },
	}
	op.emit(model.EventSubmissionReviewed, caller, nil, index, map[string]any{"decision": decision.String()})
	for _, t := range result.Transitions {
		if t.To == model.MilestoneStatusCompleted {
			op.transfers = append(op.transfers, bank.Transfer{From: s.address, To: s.recipient, Amount: t.Payout})
			op.emit(model.EventMilestoneCompleted, caller, t.Payout, t.Milestone, map[string]any{
				"recipient": s.recipient.Hex(),
			})
		} else {
			op.emit(model.EventSubmissionRejected, caller, nil, t.Milestone, nil)
		}
	}

	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}

	for _, t := range result.Transitions {
		if t.Payout != nil {
			logger.Info("Milestone %d of project %s completed, paid %s to %s", t.Milestone, projectId.Hex(), t.Payout, s.recipient.Hex())
		}
	}
	return result, nil
}

// SendTokenOfThanksToSuppliers 受益人按出资权重向投票人发送感谢金
func (m *Manager) SendTokenOfThanksToSuppliers(ctx context.Context, caller common.Address, projectId common.Hash, amount *big.Int) ([]Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAccount(caller); err != nil {
		return nil, err
	}
	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	shares, err := s.thanksShares(caller, amount)
	if err != nil {
		return nil, err
	}
	if err := m.checkFunds(caller, amount); err != nil {
		return nil, err
	}

	op := &operation{projectId: projectId}
	for _, sh := range shares {
		op.transfers = append(op.transfers, bank.Transfer{From: caller, To: sh.Account, Amount: sh.Amount})
	}
	op.emit(model.EventThanksDistributed, caller, amount, -1, map[string]any{"electors": len(shares)})

	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}

	logger.Info("Recipient %s sent %s thanks to %d suppliers of project %s", caller.Hex(), amount, len(shares), projectId.Hex())
	return shares, nil
}

// ClaimRefund 投票人领取被拒绝里程碑对应的退款
func (m *Manager) ClaimRefund(ctx context.Context, caller common.Address, projectId common.Hash) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkAccount(caller); err != nil {
		return nil, err
	}
	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}

	snap := s.snapshot()
	due, err := s.claimRefund(caller)
	if err != nil {
		return nil, err
	}

	op := &operation{
		projectId: projectId,
		transfers: []bank.Transfer{{From: s.address, To: caller, Amount: new(big.Int).Set(due)}},
		undo:      func() { s.restore(snap) },
	}
	op.emit(model.EventRefundClaimed, caller, due, -1, nil)

	if err := m.execute(ctx, op); err != nil {
		return nil, err
	}

	logger.Info("Elector %s claimed refund %s from project %s", caller.Hex(), due, projectId.Hex())
	return due, nil
}

// TransferRegistrarRole 把注册角色转给另一个账户
func (m *Manager) TransferRegistrarRole(ctx context.Context, caller, to common.Address) error {
	if m.gate == nil || m.registrarRole == nil {
		return ErrRoleNotConfigured
	}
	if ok, err := m.gate.IsWearer(ctx, caller, m.registrarRole); err != nil || !ok {
		return denied("wearer", caller, err)
	}
	if ok, err := m.gate.IsEligible(ctx, to, m.registrarRole); err != nil || !ok {
		return denied("eligibility", to, err)
	}
	if err := m.gate.TransferRole(ctx, m.registrarRole, caller, to); err != nil {
		logger.Warn("Registrar role transfer from %s to %s denied: %v", caller.Hex(), to.Hex(), err)
		return fmt.Errorf("%w: %v", ErrCapabilityDenied, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	op := &operation{}
	op.emit(model.EventRoleTransferred, caller, nil, -1, map[string]any{
		"role": m.registrarRole.String(),
		"to":   to.Hex(),
	})
	return m.execute(ctx, op)
}

func denied(check string, account common.Address, err error) error {
	if err != nil {
		logger.Warn("Capability %s check for %s failed: %v", check, account.Hex(), err)
		return fmt.Errorf("%w: %v", ErrCapabilityDenied, err)
	}
	return ErrCapabilityDenied
}

// GetProject 获取项目
func (m *Manager) GetProject(projectId common.Hash) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	project, err := m.project(projectId)
	if err != nil {
		return nil, err
	}
	return project.Clone(), nil
}

// GetProjects 按注册顺序获取所有项目
func (m *Manager) GetProjects() []*model.Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.registry.all()
	out := make([]*model.Project, len(all))
	for i, p := range all {
		out[i] = p.Clone()
	}
	return out
}

// GetProjectSupply 募集进度，完成后 Has 固定为完成时的托管金额
func (m *Manager) GetProjectSupply(projectId common.Hash) (*model.ProjectSupply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	project, err := m.project(projectId)
	if err != nil {
		return nil, err
	}
	return &model.ProjectSupply{
		Need: new(big.Int).Set(project.Threshold),
		Has:  m.pools[projectId].total(),
	}, nil
}

// GetProjectSuppliers 当前出资人列表
func (m *Manager) GetProjectSuppliers(projectId common.Hash) ([]model.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.project(projectId); err != nil {
		return nil, err
	}
	return m.pools[projectId].list(), nil
}

// GetProjectSupplierById 某个出资人的出资记录
func (m *Manager) GetProjectSupplierById(projectId common.Hash, supplier common.Address) (*model.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.project(projectId); err != nil {
		return nil, err
	}
	c, ok := m.pools[projectId].contribution(supplier)
	if !ok {
		return nil, ErrSupplierNotFound
	}
	out := c.Clone()
	return &out, nil
}

// GetProjectStrategy 项目绑定的策略实例
func (m *Manager) GetProjectStrategy(projectId common.Hash) (*model.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	return s.view(), nil
}

// GetMilestones 所有里程碑
func (m *Manager) GetMilestones(projectId common.Hash) ([]model.Milestone, error) {
	return m.milestones(projectId, nil)
}

// GetOfferedMilestones 等待审核的里程碑
func (m *Manager) GetOfferedMilestones(projectId common.Hash) ([]model.Milestone, error) {
	status := model.MilestoneStatusOffered
	return m.milestones(projectId, &status)
}

func (m *Manager) milestones(projectId common.Hash, status *model.MilestoneStatus) ([]model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	return s.listMilestones(status), nil
}

// GetMilestoneVotes 里程碑当前阶段的投票
func (m *Manager) GetMilestoneVotes(projectId common.Hash, index int) ([]model.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, s, err := m.instance(projectId)
	if err != nil {
		return nil, err
	}
	return s.votesOf(index)
}

// GetRecipient 项目受益人
func (m *Manager) GetRecipient(projectId common.Hash) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	project, err := m.project(projectId)
	if err != nil {
		return common.Address{}, err
	}
	return project.Recipient, nil
}

// BalanceOf 账户余额
func (m *Manager) BalanceOf(account common.Address) *big.Int {
	return m.ledger.BalanceOf(account)
}

// AuditReport 账本守恒检查结果
type AuditReport struct {
	Projects   int      `json:"projects"`
	Strategies int      `json:"strategies"`
	Violations []string `json:"violations,omitempty"`
}

// Audit 检查资金池余额与出资记录、策略实例托管与账户余额是否一致
func (m *Manager) Audit() *AuditReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &AuditReport{}
	for _, project := range m.registry.all() {
		if m.inFlight[project.Id] {
			continue
		}
		report.Projects++

		pool := m.pools[project.Id]
		if !project.Finalized() {
			if pool.balance.Cmp(pool.total()) != 0 {
				report.Violations = append(report.Violations,
					fmt.Sprintf("project %s: pool balance %s != contributions %s", project.Id.Hex(), pool.balance, pool.total()))
			}
			if have := m.ledger.BalanceOf(project.Anchor); have.Cmp(pool.balance) < 0 {
				report.Violations = append(report.Violations,
					fmt.Sprintf("project %s: anchor holds %s, pool needs %s", project.Id.Hex(), have, pool.balance))
			}
			continue
		}

		s, ok := m.factory.get(project.StrategyId)
		if !ok {
			report.Violations = append(report.Violations,
				fmt.Sprintf("project %s: strategy %d missing", project.Id.Hex(), project.StrategyId))
			continue
		}
		report.Strategies++
		if !s.balanced() {
			report.Violations = append(report.Violations,
				fmt.Sprintf("strategy %d: distributed %s + escrow %s + refunded %s != original %s",
					s.id, s.distributed, s.escrow, s.refunded, s.originalEscrow))
		}
		if have := m.ledger.BalanceOf(s.address); have.Cmp(s.escrow) < 0 {
			report.Violations = append(report.Violations,
				fmt.Sprintf("strategy %d: account holds %s, escrow %s", s.id, have, s.escrow))
		}
	}
	return report
}
