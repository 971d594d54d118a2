package journal

import (
	"context"
	"sync"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/model"
)

// EventStore 事件存储，由 repository.EventRepository 实现
type EventStore interface {
	Save(ctx context.Context, events []model.LedgerEvent) error
}

// Journal 账本事件发件箱
//
// Publish 只入队，从不阻塞账本操作；Flush 把队列写入存储，失败的批次保留在队列中等待下次重试。
type Journal struct {
	mu      sync.Mutex
	store   EventStore
	pending []model.LedgerEvent
	recent  []model.LedgerEvent
	keep    int
}

// New 创建发件箱，store 为 nil 时只在内存中保留最近 keep 条事件
func New(store EventStore, keep int) *Journal {
	if keep <= 0 {
		keep = 1000
	}
	return &Journal{store: store, keep: keep}
}

// Publish 实现 logic.EventSink
func (j *Journal) Publish(events ...model.LedgerEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.store != nil {
		j.pending = append(j.pending, events...)
	}
	j.recent = append(j.recent, events...)
	if over := len(j.recent) - j.keep; over > 0 {
		j.recent = append(j.recent[:0:0], j.recent[over:]...)
	}
}

// Pending 待写入的事件数
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Recent 最近的事件，filter 为 nil 时不过滤
func (j *Journal) Recent(filter func(model.LedgerEvent) bool) []model.LedgerEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]model.LedgerEvent, 0, len(j.recent))
	for _, e := range j.recent {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
	}
	return out
}

// Flush 写入队列中的事件，返回写入条数
func (j *Journal) Flush(ctx context.Context) (int, error) {
	if j.store == nil {
		return 0, nil
	}

	j.mu.Lock()
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}

	if err := j.store.Save(ctx, batch); err != nil {
		j.mu.Lock()
		j.pending = append(batch, j.pending...)
		j.mu.Unlock()
		logger.Error("Failed to flush %d ledger events: %v", len(batch), err)
		return 0, err
	}

	logger.Debug("Flushed %d ledger events", len(batch))
	return len(batch), nil
}
