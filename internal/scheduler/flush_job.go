package scheduler

import (
	"context"
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

// Flusher 事件日志落库，由 journal.Journal 实现
type Flusher interface {
	Flush(ctx context.Context) (int, error)
	Pending() int
}

// FlushJob 定期把待写入的账本事件写入数据库
type FlushJob struct {
	flusher  Flusher
	interval time.Duration
}

func NewFlushJob(flusher Flusher, intervalSeconds int) *FlushJob {
	if intervalSeconds <= 0 {
		intervalSeconds = 10
	}
	return &FlushJob{
		flusher:  flusher,
		interval: time.Duration(intervalSeconds) * time.Second,
	}
}

func (j *FlushJob) GetName() string {
	return "journal_flush"
}

func (j *FlushJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *FlushJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	n, err := j.flusher.Flush(ctx)
	metrics.JournalPending.Set(float64(j.flusher.Pending()))
	if err != nil {
		logger.Error("Failed to flush ledger events: %v", err)
		return
	}
	if n > 0 {
		logger.Debug("Flushed %d ledger events", n)
	}
}
