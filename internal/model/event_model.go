package model

import (
	"time"
)

// LedgerEventModel 账本事件持久化记录
type LedgerEventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Sequence  uint64 `json:"sequence" gorm:"uniqueIndex;not null"`
	ProjectId string `json:"project_id" gorm:"index;size:66"`
	Kind      string `json:"kind" gorm:"index;not null"`
	Actor     string `json:"actor" gorm:"size:42"`
	Amount    string `json:"amount"` // 十进制字符串，避免精度丢失
	Milestone int    `json:"milestone" gorm:"default:-1"`
	Data      string `json:"data" gorm:"type:text"`
}

// TableName 自定义表名
func (LedgerEventModel) TableName() string {
	return "ledger_event"
}

// DepositModel 链上充值记录，用于去重
type DepositModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ContractAddress string `json:"contract_address" gorm:"not null"`
	TxHash          string `json:"tx_hash" gorm:"uniqueIndex:idx_deposit_log;not null"`
	LogIndex        int64  `json:"log_index" gorm:"uniqueIndex:idx_deposit_log"`
	BlockNum        int64  `json:"block_num" gorm:"index"`
	Account         string `json:"account" gorm:"not null"`
	Amount          string `json:"amount" gorm:"not null"`
}

// TableName 自定义表名
func (DepositModel) TableName() string {
	return "deposit"
}
