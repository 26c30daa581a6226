package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"ledgerRelay/internal/fault"
	"ledgerRelay/internal/filter"
)

const (
	maxReplayLine = 16 << 20
	// DefaultCheckpointEvery is how many dispatched lines pass between
	// checkpoint writes.
	DefaultCheckpointEvery = 100
)

// ReplayUpstream serves updates from a JSON-lines file, one Update per line.
// It applies the subscribe request the way the live feed would and resumes
// after the last dispatched line, across resubscriptions and, with a
// checkpoint path, across restarts.
type ReplayUpstream struct {
	path       string
	checkpoint *CheckpointStore
	every      int64
	logger     *zap.Logger

	mu     sync.Mutex
	offset int64
	saved  int64
}

func NewReplayUpstream(path, checkpointPath string, logger *zap.Logger) (*ReplayUpstream, error) {
	if path == "" {
		return nil, fault.Errorf(fault.Config, "replay upstream", "replay file is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ReplayUpstream{
		path:       path,
		checkpoint: NewCheckpointStore(checkpointPath),
		every:      DefaultCheckpointEvery,
		logger:     logger,
	}
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return nil, fault.New(fault.Config, "load replay checkpoint", err)
	}
	if ok {
		if cp.Source != "" && cp.Source != path {
			logger.Warn("checkpoint belongs to another file, starting over",
				zap.String("checkpoint_source", cp.Source), zap.String("path", path))
		} else {
			r.offset, r.saved = cp.Offset, cp.Offset
			logger.Info("resuming replay", zap.String("path", path), zap.Int64("offset", cp.Offset))
		}
	}
	return r, nil
}

// Offset is the number of lines already dispatched.
func (r *ReplayUpstream) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

func (r *ReplayUpstream) Subscribe(ctx context.Context, req filter.SubscribeRequest) (Subscription, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxReplayLine)
	return &replaySubscription{up: r, file: f, scanner: scanner, req: req, start: r.Offset()}, nil
}

// advance marks every line before next as dispatched.
func (r *ReplayUpstream) advance(next int64, force bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next <= r.offset {
		return
	}
	r.offset = next
	if !force && r.offset-r.saved < r.every {
		return
	}
	if err := r.checkpoint.Save(r.path, r.offset); err != nil {
		r.logger.Warn("save replay checkpoint", zap.Error(err))
		return
	}
	r.saved = r.offset
}

type replaySubscription struct {
	up      *ReplayUpstream
	file    *os.File
	scanner *bufio.Scanner
	req     filter.SubscribeRequest
	start   int64
	line    int64
	pending int64
}

// Recv returns the next matching update. Lines before the resume offset,
// malformed lines and updates the request excludes are skipped.
func (s *replaySubscription) Recv(ctx context.Context) (Update, error) {
	if s.pending > 0 {
		s.up.advance(s.pending, false)
	}
	for {
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Update{}, fmt.Errorf("scan replay file: %w", err)
			}
			s.up.advance(s.line, true)
			return Update{}, io.EOF
		}
		s.line++
		if s.line <= s.start {
			continue
		}
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var upd Update
		if err := json.Unmarshal(raw, &upd); err != nil {
			s.up.logger.Warn("skipping malformed replay line", zap.Int64("line", s.line), zap.Error(err))
			continue
		}
		if !s.matches(upd) {
			continue
		}
		s.pending = s.line
		return upd, nil
	}
}

func (s *replaySubscription) matches(upd Update) bool {
	switch {
	case upd.Account != nil:
		return s.req.MatchesAccount(upd.Account)
	case upd.Slot != nil:
		return s.req.Slots
	case upd.Transaction != nil:
		return s.req.MatchesTransaction(upd.Transaction)
	}
	return false
}

func (s *replaySubscription) Close() error {
	if s.pending > 0 {
		s.up.advance(s.pending, true)
	}
	return s.file.Close()
}
