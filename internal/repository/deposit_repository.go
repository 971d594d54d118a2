package repository

import (
	"context"
	"fmt"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DepositRepository 链上充值记录
type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Record 记录一笔充值，返回 false 表示该日志已经处理过
func (r *DepositRepository) Record(ctx context.Context, deposit *model.DepositModel) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
			DoNothing: true,
		}).
		Create(deposit)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record deposit %s#%d: %w", deposit.TxHash, deposit.LogIndex, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// LastBlock 已处理的最大区块号，没有记录时返回 0
func (r *DepositRepository) LastBlock(ctx context.Context, contractAddress string) (int64, error) {
	var last int64
	err := r.db.WithContext(ctx).
		Model(&model.DepositModel{}).
		Where("contract_address = ?", contractAddress).
		Select("COALESCE(MAX(block_num), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query last deposit block: %w", err)
	}
	return last, nil
}

// Each 按写入顺序遍历所有充值记录
func (r *DepositRepository) Each(ctx context.Context, fn func(model.DepositModel) error) error {
	var batch []model.DepositModel
	result := r.db.WithContext(ctx).
		FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for _, deposit := range batch {
				if err := fn(deposit); err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return fmt.Errorf("failed to iterate deposits: %w", result.Error)
	}
	return nil
}
