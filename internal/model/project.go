package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Metadata 元数据指针，内容不做解析
type Metadata struct {
	Protocol uint64 `json:"protocol"`
	Pointer  string `json:"pointer"`
}

// Project 众筹项目
type Project struct {
	Id          common.Hash    `json:"id"`
	Threshold   *big.Int       `json:"threshold"`
	Recipient   common.Address `json:"recipient"`
	Owner       common.Address `json:"owner"`
	Anchor      common.Address `json:"anchor"` // 资金池账户
	Description string         `json:"description"`
	Metadata    Metadata       `json:"metadata"`
	Seed        *big.Int       `json:"seed"`
	Sequence    uint64         `json:"sequence"`

	// 达到目标金额之前为0
	StrategyId uint64 `json:"strategy_id"`
}

// Finalized 资金池是否已经完成募集并绑定策略实例
func (p *Project) Finalized() bool {
	return p.StrategyId != 0
}

// Clone 返回深拷贝，避免调用方修改账本内部状态
func (p *Project) Clone() *Project {
	c := *p
	c.Threshold = new(big.Int).Set(p.Threshold)
	if p.Seed != nil {
		c.Seed = new(big.Int).Set(p.Seed)
	}
	return &c
}

// ProjectSupply 项目募集进度
type ProjectSupply struct {
	Need *big.Int `json:"need"`
	Has  *big.Int `json:"has"`
}
