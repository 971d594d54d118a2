package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Contribution 出资记录，每个 (项目, 出资人) 只有一条有效记录
type Contribution struct {
	ProjectId common.Hash    `json:"project_id"`
	Supplier  common.Address `json:"supplier"`
	Amount    *big.Int       `json:"amount"`
	Index     uint64         `json:"index"` // 出资顺序号，撤回后重新出资会得到新的顺序号
}

// Clone 返回深拷贝
func (c *Contribution) Clone() Contribution {
	out := *c
	out.Amount = new(big.Int).Set(c.Amount)
	return out
}
