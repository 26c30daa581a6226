package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ledgerRelay/internal/model"
)

// JsonlSink appends every event as one JSON line. It does not deduplicate.
type JsonlSink struct {
	path       string
	errorsPath string
	mu         sync.Mutex
}

// NewJsonlSink writes events to path and, when errorsPath is set, decode
// failures to errorsPath.
func NewJsonlSink(path, errorsPath string) *JsonlSink {
	return &JsonlSink{path: path, errorsPath: errorsPath}
}

func (s *JsonlSink) InsertAccount(ctx context.Context, acc *model.AccountUpdate) error {
	return s.append(s.path, model.AccountEnvelope(acc))
}

func (s *JsonlSink) InsertSlot(ctx context.Context, slot *model.SlotUpdate) error {
	return s.append(s.path, model.SlotEnvelope(slot))
}

func (s *JsonlSink) InsertTransaction(ctx context.Context, tx *model.TransactionEvent) error {
	return s.append(s.path, model.TransactionEnvelope(tx))
}

func (s *JsonlSink) PutDecodeError(ctx context.Context, rec model.DecodeError) error {
	if s.errorsPath == "" {
		return nil
	}
	return s.append(s.errorsPath, rec)
}

func (s *JsonlSink) append(path string, records ...any) error {
	if len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
