package control

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
)

// Source delivers rule sets from the control plane.
type Source interface {
	// Fetch returns the current rule set.
	Fetch(ctx context.Context) (filter.RuleSet, error)
	// Watch calls apply for every update until ctx is done, returning nil,
	// or the channel breaks, returning the error.
	Watch(ctx context.Context, apply func(filter.RuleSet)) error
}

const DefaultPollInterval = 2 * time.Second

// FileSource reads a YAML or JSON rule file and polls it for changes.
type FileSource struct {
	path     string
	interval time.Duration
	logger   *zap.Logger
}

func NewFileSource(path string, interval time.Duration, logger *zap.Logger) *FileSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, interval: interval, logger: logger}
}

func (s *FileSource) Fetch(context.Context) (filter.RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return filter.RuleSet{}, fault.New(fault.Config, "read rule file", err)
	}
	rs, err := filter.ParseRuleSet(data)
	if err != nil {
		return filter.RuleSet{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return rs, nil
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func (s *FileSource) stamp() (fileStamp, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

func (s *FileSource) Watch(ctx context.Context, apply func(filter.RuleSet)) error {
	last, err := s.stamp()
	if err != nil {
		return fmt.Errorf("stat rule file: %w", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		cur, err := s.stamp()
		if err != nil {
			return fmt.Errorf("stat rule file: %w", err)
		}
		if cur == last {
			continue
		}
		rs, err := s.Fetch(ctx)
		if err != nil {
			// A half-written file is retried on the next tick.
			s.logger.Warn("rule file unreadable", zap.String("path", s.path), zap.Error(err))
			continue
		}
		last = cur
		apply(rs)
	}
}

// StaticSource serves a fixed rule set and never updates.
type StaticSource struct {
	Rules filter.RuleSet
}

func (s StaticSource) Fetch(context.Context) (filter.RuleSet, error) { return s.Rules, nil }

func (s StaticSource) Watch(ctx context.Context, _ func(filter.RuleSet)) error {
	<-ctx.Done()
	return nil
}
