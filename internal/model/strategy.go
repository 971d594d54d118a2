package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Elector 投票人及其冻结时的出资权重
type Elector struct {
	Address common.Address `json:"address"`
	Weight  *big.Int       `json:"weight"`
}

// Strategy 策略实例的只读视图
type Strategy struct {
	Id             uint64         `json:"id"`
	ProjectId      common.Hash    `json:"project_id"`
	Address        common.Address `json:"address"`
	Recipient      common.Address `json:"recipient"`
	Electors       []Elector      `json:"electors"`
	OriginalEscrow *big.Int       `json:"original_escrow"`
	Escrow         *big.Int       `json:"escrow"`
	Distributed    *big.Int       `json:"distributed"`
	Refunded       *big.Int       `json:"refunded"`
	RejectedShare  *big.Int       `json:"rejected_share"` // 被拒绝里程碑的百分比之和
}
