package scheduler

import (
	"time"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logger"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

// Auditor 账本一致性检查，由 logic.Manager 实现
type Auditor interface {
	Audit() *logic.AuditReport
}

// AuditJob 定期核对资金池和策略托管
type AuditJob struct {
	auditor  Auditor
	interval time.Duration
}

func NewAuditJob(auditor Auditor, intervalSeconds int) *AuditJob {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	return &AuditJob{
		auditor:  auditor,
		interval: time.Duration(intervalSeconds) * time.Second,
	}
}

func (j *AuditJob) GetName() string {
	return "ledger_audit"
}

func (j *AuditJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *AuditJob) Execute() {
	report := j.auditor.Audit()
	metrics.AuditViolations.Set(float64(len(report.Violations)))

	if len(report.Violations) == 0 {
		logger.Debug("Ledger audit passed (%d projects, %d strategies)", report.Projects, report.Strategies)
		return
	}
	for _, violation := range report.Violations {
		logger.Error("Ledger audit violation: %s", violation)
	}
}
