// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package copyengine implements the content-addressed copy protocol
// from spec §4.I: stream a source file through a SHA-256 digest into a
// staging temp file under rate-limit control, then either discard it as
// a duplicate or atomically rename it into its sharded final location,
// recording the digest in the dedup index. Grounded on the teacher's
// archiveWorker.go channel-fed worker (internal/archiver/archiveWorker.go
// in the retrieved source tree): that file's "read one job off a channel,
// do blocking I/O, report success/failure on a result channel" shape is
// reused here for a single task instead of a batch of jobs, with the
// scheduler's CopyFunc callback standing in for the channel receive.
package copyengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/index"
	"github.com/allenjin-login/usbthief/internal/pathutil"
	"github.com/allenjin-login/usbthief/internal/ratelimit"
	"github.com/allenjin-login/usbthief/internal/scheduler"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// defaultBufferSize is used when Config.BufferSize is unset (0),
// matching the buffer_size schema entry's own default.
const defaultBufferSize = 64 * 1024

// Config holds the copy engine's tunables, sourced from
// internal/config.Store (spec §6 "Copy engine" category).
type Config struct {
	WorkDir     string
	MaxFileSize int64 // 0 means unbounded
	BufferSize  int   // per-chunk read/rate-limiter/hash unit; 0 means defaultBufferSize
}

// Engine performs the copy protocol against a shared dedup Index, rate
// Limiter, and event Bus. A single Engine is safe for concurrent use by
// every executor worker at once: Index and Limiter are themselves
// concurrency-safe, and Engine holds no other mutable state.
type Engine struct {
	cfg   Config
	idx   *index.Index
	rl    *ratelimit.Limiter
	bus   *eventbus.Bus
	speed *SpeedProbe
}

// New builds an Engine.
func New(cfg Config, idx *index.Index, rl *ratelimit.Limiter, bus *eventbus.Bus, speed *SpeedProbe) *Engine {
	return &Engine{cfg: cfg, idx: idx, rl: rl, bus: bus, speed: speed}
}

// MBPerSecond satisfies internal/scheduler.SpeedProbe by delegating to
// the engine's probe.
func (e *Engine) MBPerSecond() float64 { return e.speed.MBPerSecond() }

// Copy executes one task's copy protocol end to end (spec §4.I steps
// 1-7). It never returns an error to its caller in the normal sense:
// every outcome (success, duplicate, collision, cancellation, policy
// rejection) is reported as a CopyCompleted event, matching the
// scheduler's CopyFunc contract (fire-and-forget from the dispatcher's
// point of view). The one exception is a context cancelled before any
// work starts, which is reported as ResultCancel rather than silently
// dropped.
func (e *Engine) Copy(ctx context.Context, t scheduler.Task) {
	if t.Size > 0 && e.cfg.MaxFileSize > 0 && t.Size > e.cfg.MaxFileSize {
		log.Debugf("copyengine: %s exceeds max_file_size, failing fast", t.Source)
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, 0, eventbus.ResultFail))
		return
	}

	tmpPath := pathutil.TempPath(e.cfg.WorkDir)
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		log.Errorf("copyengine: create staging dir: %v", err)
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, 0, eventbus.ResultFail))
		return
	}

	digest, written, err := e.stream(ctx, t.Source, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, context.Canceled) {
			log.Debugf("copyengine: %s cancelled", t.Source)
			e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultCancel))
			return
		}
		log.Errorf("copyengine: copy %s: %v", t.Source, err)
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultFail))
		return
	}

	key := index.ChecksumKey(digest)
	entry := index.Entry{Key: key, Size: written}

	if existing, ok := e.idx.Get(key); ok {
		if existing.Size != written {
			log.Errorf("copyengine: digest collision for %s: indexed size %d, new size %d", t.Source, existing.Size, written)
			os.Remove(tmpPath)
			e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultFail))
			return
		}
		e.idx.Touch(key)
		os.Remove(tmpPath)
		log.Debugf("copyengine: %s is a duplicate of already-indexed content", t.Source)
		e.bus.PublishSync(eventbus.NewDuplicateDetected(t.Source))
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultSuccess))
		return
	}

	dest := pathutil.ShardedDestination(e.cfg.WorkDir, digest, filepath.Ext(t.Source))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		os.Remove(tmpPath)
		log.Errorf("copyengine: create destination dir: %v", err)
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultFail))
		return
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		log.Errorf("copyengine: finalize %s: %v", t.Source, err)
		e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, "", t.Size, written, eventbus.ResultFail))
		return
	}

	entry.Destination = dest
	if !e.idx.InsertIfAbsent(entry) {
		// Lost a race with a concurrent copy of identical content; the
		// file already safely landed under dest via the other insertion,
		// so ours is redundant on disk. Keep the one already indexed.
		if existing, ok := e.idx.Get(key); ok && existing.Destination != dest {
			os.Remove(dest)
		}
		e.bus.PublishSync(eventbus.NewDuplicateDetected(t.Source))
	} else {
		e.bus.PublishSync(eventbus.NewFileIndexed(dest, written, e.idx.Len()))
	}

	e.bus.PublishSync(eventbus.NewCopyCompleted(t.Source, dest, t.Size, written, eventbus.ResultSuccess))
}

// stream copies src into tmpPath, hashing and rate-limiting as it goes,
// and returns the hex digest and byte count on success.
func (e *Engine) stream(ctx context.Context, src, tmpPath string) (digest string, written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create temp: %w", err)
	}
	defer out.Close()

	h := sha256.New()
	bufSize := e.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	buf := make([]byte, bufSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", written, err
		}

		n, readErr := in.Read(buf)
		if n > 0 {
			if err := e.rl.Acquire(ctx, n); err != nil {
				return "", written, err
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				return "", written, fmt.Errorf("write temp: %w", werr)
			}
			h.Write(buf[:n])
			written += int64(n)
			e.speed.Record(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", written, fmt.Errorf("read source: %w", readErr)
		}
	}

	if err := out.Sync(); err != nil {
		return "", written, fmt.Errorf("sync temp: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), written, nil
}
