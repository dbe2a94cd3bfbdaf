// Package journal records the operations applied to a model, together with
// their outcome, in an append-only file so that a run can be replayed later.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"storemodel/internal/model"
	"storemodel/internal/storage"
)

// Record is one applied operation.
type Record struct {
	Sequence uint64
	Op       model.Operation
	Outcome  model.Outcome
}

type Config struct {
	Path           string
	EnqueueTimeout time.Duration
	FlushInterval  time.Duration
	MaxQueue       int
	BufferBytes    int
}

const (
	defaultBufferBytes    = 1 << 20
	minimalBufferBytes    = 128
	defaultMaxQueue       = 1024
	defaultEnqueueTimeout = time.Second
	defaultFlushInterval  = time.Second
)

var ErrClosed = errors.New("journal closed")

type flusher struct {
	segment  *os.File
	sequence uint64
	buffer   bytes.Buffer
	maxBytes int
}

type appendMsg struct {
	op      model.Operation
	outcome model.Outcome
	done    chan error
}

/*
Journal appends records through a single writer goroutine:
  - the channel preserves request order and the goroutine alone owns the file,
    the buffer and the sequence counter,
  - the bounded channel and enqueue timeout make callers fail fast instead of
    queueing without limit,
  - Append waits until its record is buffered,
  - the buffer is flushed and synced when full, on every tick, and on shutdown.
*/
type Journal struct {
	cfg     Config
	log     *zap.Logger
	flusher flusher
	queue   chan appendMsg
	ticker  *time.Ticker
	cancel  context.CancelFunc
	done    chan struct{}
}

// Open opens or creates the journal at cfg.Path and starts its writer. The
// writer stops, flushing what it buffered, when ctx is cancelled or Close is
// called. Sequence numbers continue after the last valid record in the file.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	existing, validEnd, err := load(cfg.Path, log)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	var next uint64
	if len(existing) > 0 {
		next = existing[len(existing)-1].Sequence + 1
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// Drop a torn or corrupt tail so new records follow the last valid one.
	if info, err := f.Stat(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat journal: %w", err)
	} else if info.Size() > validEnd {
		log.Warn("truncating journal tail",
			zap.String("journal", cfg.Path), zap.Int64("valid_bytes", validEnd), zap.Int64("size", info.Size()))
		if err := f.Truncate(validEnd); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate journal: %w", err)
		}
	}

	bufferBytes := cfg.BufferBytes
	if bufferBytes <= 0 {
		bufferBytes = defaultBufferBytes
	}
	bufferBytes = max(bufferBytes, minimalBufferBytes)
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = defaultEnqueueTimeout
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	runCtx, cancel := context.WithCancel(ctx)
	j := &Journal{
		cfg:    cfg,
		log:    log.With(zap.String("journal", cfg.Path)),
		queue:  make(chan appendMsg, cfg.MaxQueue),
		ticker: time.NewTicker(cfg.FlushInterval),
		cancel: cancel,
		done:   make(chan struct{}),
		flusher: flusher{
			segment:  f,
			sequence: next,
			maxBytes: bufferBytes,
		},
	}
	go func() {
		defer close(j.done)
		j.run(runCtx)
		j.ticker.Stop()
		_ = j.flusher.segment.Close()
	}()
	return j, nil
}

// Append records that op was applied with the given outcome.
func (j *Journal) Append(op model.Operation, outcome model.Outcome) error {
	msg := appendMsg{op: op, outcome: outcome, done: make(chan error, 1)}
	timer := time.NewTimer(j.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case j.queue <- msg:
		select {
		case err := <-msg.done:
			return err
		case <-j.done:
			return ErrClosed
		}
	case <-j.done:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("timed out after %v waiting to enqueue record", j.cfg.EnqueueTimeout)
	}
}

// Close stops the writer after flushing buffered records.
func (j *Journal) Close() error {
	j.cancel()
	<-j.done
	return nil
}

func (j *Journal) run(ctx context.Context) {
	for {
		select {
		case msg := <-j.queue:
			rec := Record{Sequence: j.flusher.sequence, Op: msg.op, Outcome: msg.outcome}
			err := j.flusher.write(encodeRecord(rec))
			if err == nil {
				j.flusher.sequence++
			}
			msg.done <- err
		case <-j.ticker.C:
			if err := j.flusher.flush(); err != nil {
				j.log.Warn("periodic flush failed", zap.Error(err))
			}
		case <-ctx.Done():
			j.log.Debug("shutting down, flushing journal")
			if err := j.flusher.flush(); err != nil {
				j.log.Warn("shutdown flush failed", zap.Error(err))
			}
			return
		}
	}
}

func (fl *flusher) write(data []byte) error {
	if len(data) > fl.maxBytes {
		return fmt.Errorf("journal record (%d bytes) exceeds buffer size (%d bytes)", len(data), fl.maxBytes)
	}
	if fl.buffer.Len()+len(data) > fl.maxBytes {
		if err := fl.flush(); err != nil {
			return err
		}
	}
	_, err := fl.buffer.Write(data)
	return err
}

func (fl *flusher) flush() error {
	if fl.buffer.Len() == 0 {
		return nil
	}
	if err := storage.Append(fl.segment, fl.buffer.Bytes()); err != nil {
		return err
	}
	if err := fl.segment.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	fl.buffer.Reset()
	return nil
}
