package service

import (
	"sync"
	"time"

	"qadam_backend/internal/config"
)

// ExamPolicy 持有可热更新的考试参数，配置文件变更时由 configwatcher 刷新
type ExamPolicy struct {
	mu  sync.RWMutex
	cfg config.ExamConfig
}

func NewExamPolicy(cfg config.ExamConfig) *ExamPolicy {
	return &ExamPolicy{cfg: cfg}
}

func (p *ExamPolicy) Update(cfg config.ExamConfig) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *ExamPolicy) Current() config.ExamConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *ExamPolicy) TimeBudget() time.Duration {
	return p.Current().TimeBudget()
}

func (p *ExamPolicy) BudgetSeconds() int {
	return int(p.TimeBudget() / time.Second)
}
