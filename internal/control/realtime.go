package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ledgerRelay/internal/filter"
)

const (
	DefaultHeartbeat = 15 * time.Second

	realtimeReadLimit  = 4 * 1024 * 1024
	realtimeWriteLimit = 5 * time.Second
)

type RealtimeConfig struct {
	// BaseURL is the project URL, e.g. https://xyz.example.co.
	BaseURL string
	APIKey  string
	Table   string
	RowID   string
	// Heartbeat defaults to DefaultHeartbeat.
	Heartbeat time.Duration
}

// RealtimeSource reads the rule row over REST and follows changes to it over
// the realtime websocket channel.
type RealtimeSource struct {
	cfg    RealtimeConfig
	http   *http.Client
	dialer websocket.Dialer
	logger *zap.Logger
}

func NewRealtimeSource(cfg RealtimeConfig, logger *zap.Logger) (*RealtimeSource, error) {
	if cfg.BaseURL == "" || cfg.Table == "" {
		return nil, fmt.Errorf("realtime source needs a base url and a table")
	}
	if cfg.RowID == "" {
		cfg.RowID = "1"
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeSource{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}, nil
}

func (s *RealtimeSource) restURL() string {
	q := url.Values{}
	q.Set("id", "eq."+s.cfg.RowID)
	q.Set("select", "*")
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/rest/v1/" + s.cfg.Table + "?" + q.Encode()
}

func (s *RealtimeSource) socketURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/realtime/v1/websocket")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("apikey", s.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch reads the rule row. A missing row yields an empty rule set.
func (s *RealtimeSource) Fetch(ctx context.Context) (filter.RuleSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.restURL(), nil)
	if err != nil {
		return filter.RuleSet{}, err
	}
	req.Header.Set("apikey", s.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		return filter.RuleSet{}, fmt.Errorf("fetch rules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return filter.RuleSet{}, fmt.Errorf("fetch rules: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var rows []filter.RuleSet
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return filter.RuleSet{}, fmt.Errorf("decode rule rows: %w", err)
	}
	if len(rows) == 0 {
		return filter.RuleSet{}, nil
	}
	return rows[0], nil
}

type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changePayload struct {
	New json.RawMessage `json:"new"`
}

func (s *RealtimeSource) topic() string {
	return fmt.Sprintf("realtime:public:%s:id=eq.%s", s.cfg.Table, s.cfg.RowID)
}

// Watch joins the row's channel and applies the new row of every change.
func (s *RealtimeSource) Watch(ctx context.Context, apply func(filter.RuleSet)) error {
	endpoint, err := s.socketURL()
	if err != nil {
		return err
	}
	ws, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer ws.Close()

	var writeMu sync.Mutex
	write := func(msg phoenixMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.SetWriteDeadline(time.Now().Add(realtimeWriteLimit))
		return ws.WriteJSON(msg)
	}
	if err := write(phoenixMessage{Topic: s.topic(), Event: "phx_join", Payload: json.RawMessage(`{}`), Ref: "1"}); err != nil {
		return fmt.Errorf("join channel: %w", err)
	}
	s.logger.Info("joined realtime channel", zap.String("topic", s.topic()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks the read loop below.
				_ = ws.Close()
				return
			case <-ticker.C:
				if err := write(phoenixMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: "2"}); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	ws.SetReadLimit(realtimeReadLimit)
	for {
		var msg phoenixMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read realtime: %w", err)
		}
		if msg.Event != "postgres_changes" {
			continue
		}
		var change changePayload
		if err := json.Unmarshal(msg.Payload, &change); err != nil || len(change.New) == 0 {
			continue
		}
		var rs filter.RuleSet
		if err := json.Unmarshal(change.New, &rs); err != nil {
			s.logger.Warn("ignore malformed rule row", zap.Error(err))
			continue
		}
		apply(rs)
	}
}
