package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
)

const (
	DefaultRulesSubject   = "rules.get"
	DefaultUpdatesSubject = "rules.updates"
)

// natsConn is the part of *nats.Conn the source uses.
type natsConn interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type NATSConfig struct {
	URL            string
	Name           string
	RulesSubject   string
	UpdatesSubject string
	RequestTimeout time.Duration
}

// NATSSource fetches the rule set with a request on RulesSubject and
// receives pushed rule sets on UpdatesSubject. Payloads are JSON RuleSets.
type NATSSource struct {
	conn   natsConn
	cfg    NATSConfig
	closed <-chan struct{}
	logger *zap.Logger
}

// ConnectNATS dials the server. The client reconnects on its own; Watch
// returns only once the connection is closed for good.
func ConnectNATS(cfg NATSConfig, logger *zap.Logger) (*NATSSource, *nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "ledger-relay"
	}
	closed := make(chan struct{})
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, nil, fault.New(fault.StoreConnect, "connect nats", err)
	}
	src := newNATSSource(conn, cfg, logger)
	src.closed = closed
	return src, conn, nil
}

func newNATSSource(conn natsConn, cfg NATSConfig, logger *zap.Logger) *NATSSource {
	if cfg.RulesSubject == "" {
		cfg.RulesSubject = DefaultRulesSubject
	}
	if cfg.UpdatesSubject == "" {
		cfg.UpdatesSubject = DefaultUpdatesSubject
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSource{conn: conn, cfg: cfg, logger: logger}
}

func (s *NATSSource) Fetch(ctx context.Context) (filter.RuleSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	msg, err := s.conn.RequestWithContext(ctx, s.cfg.RulesSubject, nil)
	if err != nil {
		return filter.RuleSet{}, fmt.Errorf("request %s: %w", s.cfg.RulesSubject, err)
	}
	return decodeRuleSet(msg.Data)
}

func (s *NATSSource) Watch(ctx context.Context, apply func(filter.RuleSet)) error {
	updates := make(chan filter.RuleSet, 1)
	sub, err := s.conn.Subscribe(s.cfg.UpdatesSubject, func(msg *nats.Msg) {
		rs, err := decodeRuleSet(msg.Data)
		if err != nil {
			s.logger.Warn("ignore malformed rule update", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		// Keep only the newest pending update.
		select {
		case <-updates:
		default:
		}
		updates <- rs
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.UpdatesSubject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return fmt.Errorf("nats connection closed")
		case rs := <-updates:
			apply(rs)
		}
	}
}

func decodeRuleSet(data []byte) (filter.RuleSet, error) {
	var rs filter.RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return filter.RuleSet{}, fault.New(fault.Config, "decode rule set", err)
	}
	return rs, nil
}
