package logic

import (
	"fmt"
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProjectRequest 注册项目参数
type ProjectRequest struct {
	Threshold   *big.Int
	Seed        *big.Int
	Description string
	Metadata    model.Metadata
	Recipient   common.Address
}

// projectRegistry 项目注册表，只有策略实例绑定字段在注册后可变
type projectRegistry struct {
	projects map[common.Hash]*model.Project
	order    []common.Hash
	sequence uint64
}

func newProjectRegistry() *projectRegistry {
	return &projectRegistry{projects: make(map[common.Hash]*model.Project)}
}

// validate 注册前校验，不修改状态
func (r *projectRegistry) validate(req *ProjectRequest) error {
	if req.Threshold == nil || req.Threshold.Sign() <= 0 {
		return ErrInvalidThreshold
	}
	if req.Seed != nil && req.Seed.Sign() < 0 {
		return ErrInvalidSeed
	}
	if req.Recipient == (common.Address{}) {
		return ErrInvalidRecipient
	}
	return nil
}

// register 创建项目记录
func (r *projectRegistry) register(owner common.Address, req *ProjectRequest) (*model.Project, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	seed := new(big.Int)
	if req.Seed != nil {
		seed.Set(req.Seed)
	}

	sequence := r.sequence + 1
	id := projectId(seed, owner, sequence)
	if _, exists := r.projects[id]; exists {
		return nil, fmt.Errorf("project %s: %w", id.Hex(), ErrProjectIdCollision)
	}

	project := &model.Project{
		Id:          id,
		Threshold:   new(big.Int).Set(req.Threshold),
		Recipient:   req.Recipient,
		Owner:       owner,
		Anchor:      deriveAccount(id, "pool"),
		Description: req.Description,
		Metadata:    req.Metadata,
		Seed:        seed,
		Sequence:    sequence,
	}

	r.sequence = sequence
	r.projects[id] = project
	r.order = append(r.order, id)

	return project, nil
}

func (r *projectRegistry) get(id common.Hash) (*model.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// all 按注册顺序返回
func (r *projectRegistry) all() []*model.Project {
	out := make([]*model.Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.projects[id])
	}
	return out
}

// bind 绑定策略实例，只允许一次
func (r *projectRegistry) bind(project *model.Project, strategyId uint64) error {
	if project.Finalized() {
		return ErrPoolAlreadyFinalized
	}
	project.StrategyId = strategyId
	return nil
}

// projectId keccak256(seed ‖ registrant ‖ sequence)
func projectId(seed *big.Int, registrant common.Address, sequence uint64) common.Hash {
	return crypto.Keccak256Hash(
		common.LeftPadBytes(seed.Bytes(), 32),
		registrant.Bytes(),
		common.LeftPadBytes(new(big.Int).SetUint64(sequence).Bytes(), 32),
	)
}

// deriveAccount 从项目ID派生托管账户地址
func deriveAccount(id common.Hash, label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label), id.Bytes()))
}
