package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository 账本事件持久化
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save 批量写入事件，按序号去重，重复写入不报错
func (r *EventRepository) Save(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]model.LedgerEventModel, 0, len(events))
	for _, e := range events {
		row, err := toEventModel(e)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sequence"}}, DoNothing: true}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("failed to save ledger events: %w", err)
	}
	return nil
}

// FindByProject 按序号顺序查询项目事件，afterSequence 之前的事件不返回
func (r *EventRepository) FindByProject(ctx context.Context, projectId common.Hash, afterSequence uint64, limit int) ([]model.LedgerEvent, error) {
	var rows []model.LedgerEventModel
	query := r.db.WithContext(ctx).
		Where("project_id = ? AND sequence > ?", projectId.Hex(), afterSequence).
		Order("sequence ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}

	events := make([]model.LedgerEvent, 0, len(rows))
	for _, row := range rows {
		e, err := fromEventModel(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// LastSequence 已持久化的最大事件序号，没有记录时返回 0
func (r *EventRepository) LastSequence(ctx context.Context) (uint64, error) {
	var last uint64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEventModel{}).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query last event sequence: %w", err)
	}
	return last, nil
}

func toEventModel(e model.LedgerEvent) (model.LedgerEventModel, error) {
	row := model.LedgerEventModel{
		Sequence:  e.Sequence,
		ProjectId: e.ProjectId.Hex(),
		Kind:      string(e.Kind),
		Actor:     e.Actor.Hex(),
		Milestone: e.Milestone,
	}
	if e.Amount != nil {
		row.Amount = e.Amount.String()
	}
	if len(e.Data) > 0 {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return row, fmt.Errorf("failed to encode event %d data: %w", e.Sequence, err)
		}
		row.Data = string(data)
	}
	return row, nil
}

func fromEventModel(row model.LedgerEventModel) (model.LedgerEvent, error) {
	e := model.LedgerEvent{
		Sequence:  row.Sequence,
		ProjectId: common.HexToHash(row.ProjectId),
		Kind:      model.EventKind(row.Kind),
		Actor:     common.HexToAddress(row.Actor),
		Milestone: row.Milestone,
	}
	if row.Amount != "" {
		amount, ok := new(big.Int).SetString(row.Amount, 10)
		if !ok {
			return e, fmt.Errorf("event %d has invalid amount %q", row.Sequence, row.Amount)
		}
		e.Amount = amount
	}
	if row.Data != "" {
		if err := json.Unmarshal([]byte(row.Data), &e.Data); err != nil {
			return e, fmt.Errorf("failed to decode event %d data: %w", row.Sequence, err)
		}
	}
	return e, nil
}
