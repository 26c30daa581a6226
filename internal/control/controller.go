package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
	"ledgerRelay/internal/retry"
)

// Controller loads the initial rule set and keeps the Cell updated from a
// Source.
type Controller struct {
	source   Source
	defaults filter.Streams
	cell     *Cell
	backoff  retry.Backoff
	logger   *zap.Logger
}

func NewController(source Source, defaults filter.Streams, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		source:   source,
		defaults: defaults,
		backoff:  retry.Backoff{Base: time.Second, Max: 30 * time.Second},
		logger:   logger,
	}
}

// Start fetches and compiles the initial rule set. Any failure here is a
// startup error.
func (c *Controller) Start(ctx context.Context) (*Cell, error) {
	rs, err := c.source.Fetch(ctx)
	if err != nil {
		return nil, fault.New(fault.Config, "fetch initial rules", err)
	}
	set, err := filter.Compile(rs, c.defaults)
	if err != nil {
		return nil, fault.New(fault.Config, "compile initial rules", err)
	}
	c.cell = NewCell(set)
	c.logger.Info("initial rules loaded", zap.Int("rules", len(rs.Rules)), zap.Int("pools", len(rs.Pools)))
	return c.cell, nil
}

// Run follows the source until ctx is done, reconnecting with backoff.
func (c *Controller) Run(ctx context.Context) error {
	if c.cell == nil {
		return fmt.Errorf("controller not started")
	}
	for ctx.Err() == nil {
		err := c.source.Watch(ctx, c.apply)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("listener ended")
		}
		delay := c.backoff.Next()
		c.logger.Warn("rule listener stopped, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
		if err := retry.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
	return nil
}

// apply compiles rs and publishes it. Invalid rule sets are logged and the
// current one stays active.
func (c *Controller) apply(rs filter.RuleSet) {
	set, err := filter.Compile(rs, c.defaults)
	if err != nil {
		c.logger.Error("rejecting rule update", zap.Error(err))
		return
	}
	c.backoff.Reset()
	version := c.cell.Store(set)
	c.logger.Info("rules updated", zap.Uint64("version", version), zap.Int("rules", len(rs.Rules)), zap.Int("pools", len(rs.Pools)))
}
