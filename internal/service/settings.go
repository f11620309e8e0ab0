package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skillset_backend/internal/config"
	"skillset_backend/internal/model"
)

// Settings 考试引擎参数，配置热更新时整体替换
type Settings struct {
	mu  sync.RWMutex
	cfg config.AssessmentConfig
}

func NewSettings(cfg config.AssessmentConfig) *Settings {
	return &Settings{cfg: normalize(cfg)}
}

func (s *Settings) Get() config.AssessmentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Settings) Set(cfg config.AssessmentConfig) {
	s.mu.Lock()
	s.cfg = normalize(cfg)
	s.mu.Unlock()
}

func (s *Settings) Lang() model.Lang {
	if s.Get().ReportLang == string(model.LangEN) {
		return model.LangEN
	}
	return model.LangAR
}

func normalize(cfg config.AssessmentConfig) config.AssessmentConfig {
	d := config.DefaultAssessmentConfig()
	if cfg.GraceSeconds < 0 {
		cfg.GraceSeconds = d.GraceSeconds
	}
	if cfg.WeakSkillLimit <= 0 {
		cfg.WeakSkillLimit = d.WeakSkillLimit
	}
	if cfg.CollaboratorTimeoutSec <= 0 {
		cfg.CollaboratorTimeoutSec = d.CollaboratorTimeoutSec
	}
	if cfg.ReportPrefix == "" {
		cfg.ReportPrefix = d.ReportPrefix
	}
	if cfg.StartLockSeconds <= 0 {
		cfg.StartLockSeconds = d.StartLockSeconds
	}
	return cfg
}

// callWithTimeout 在 ctx 截止前等待 fn 返回；超时或 panic 都转换为 error
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				ch <- result{zero, fmt.Errorf("collaborator panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
