// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/allenjin-login/usbthief/internal/config"
	"github.com/allenjin-login/usbthief/internal/device"
	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/scheduler"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// Scanner runs Phase 1 (initial walk) then, if enabled, Phase 2
// (incremental fsnotify watch) for exactly one device, per spec §4.E.
// One Scanner instance exists per IDLE device; Supervisor owns that
// one-per-device invariant.
type Scanner struct {
	serial     string
	mountPoint string

	store   *config.Store
	rule    scheduler.PriorityRule
	queue   scheduler.Queue
	bus     *eventbus.Bus
	manager *device.Manager

	retry   *retryQueue
	watcher *fsnotify.Watcher
	batch   *WatchBatch

	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New builds a Scanner for one device. mountPoint is captured at
// construction; Supervisor constructs a fresh Scanner on every mount.
func New(serial, mountPoint string, store *config.Store, rule scheduler.PriorityRule, queue scheduler.Queue, bus *eventbus.Bus, manager *device.Manager) *Scanner {
	s := &Scanner{
		serial:     serial,
		mountPoint: mountPoint,
		store:      store,
		rule:       rule,
		queue:      queue,
		bus:        bus,
		manager:    manager,
		stopCh:     make(chan struct{}),
	}
	s.retry = newRetryQueue(store.GetInt("retry_count"), 500*time.Millisecond, s.submitPath, s.giveUp)
	return s
}

// Run executes Phase 1 synchronously, then launches Phase 2 in the
// background if watch_enabled is set. It returns once Phase 1
// completes (or fails); the caller (Supervisor) observes device state
// via the bus rather than Run's return value.
func (s *Scanner) Run() {
	if !s.manager.MarkScanning(s.serial) {
		return
	}

	if err := s.walk(s.mountPoint); err != nil {
		log.Errorf("scanner: phase 1 enumeration failed for %s: %v", s.serial, err)
		s.manager.MarkUnavailable(s.serial)
		return
	}

	s.manager.MarkIdle(s.serial)

	if s.store.GetBool("watch_enabled") {
		s.wg.Add(1)
		go s.runPhase2()
	}
}

// Stop cooperatively ends the scan session: a Phase 1 walk still in
// progress (Run may be on another goroutine) stops at its next entry,
// and Phase 2 ends.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.retry.Stop()
	if s.batch != nil {
		s.batch.Stop()
	}

	s.mu.Lock()
	w := s.watcher
	s.mu.Unlock()
	if w != nil {
		w.Close()
	}
	s.wg.Wait()
}

func (s *Scanner) walk(root string) error {
	filter := NewFilter(s.store)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-s.stopCh:
			return filepath.SkipAll
		default:
		}
		if err != nil {
			if path == root {
				return err
			}
			log.Errorf("scanner: enumerate %s: %v", path, err)
			s.retry.Enqueue(path)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		s.consider(path, d, filter)
		return nil
	})
}

func (s *Scanner) consider(path string, d fs.DirEntry, filter Filter) {
	info, err := d.Info()
	if err != nil {
		log.Errorf("scanner: stat %s: %v", path, err)
		s.retry.Enqueue(path)
		return
	}

	cand := Candidate{
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		IsSymlink: d.Type()&fs.ModeSymlink != 0,
		IsHidden:  false,
	}
	if ok, _ := filter.Accept(cand); !ok {
		return
	}
	s.submit(path, info.Size())
}

func (s *Scanner) submit(path string, size int64) {
	task := scheduler.Task{
		Source:       path,
		Size:         size,
		Priority:     s.rule.Priority(path, size),
		DeviceSerial: s.serial,
		CreatedNanos: time.Now().UnixNano(),
		Cancel:       scheduler.NewCancelToken(),
	}
	s.queue.Submit(task)
}

// submitPath re-stats path and submits it if it still exists and
// passes the filter; used both by the retry queue and the watch-batch
// drainer, which only have a path and must re-validate it.
func (s *Scanner) submitPath(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}

	filter := NewFilter(s.store)
	cand := Candidate{
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
	if ok, _ := filter.Accept(cand); !ok {
		return nil
	}
	s.submit(path, info.Size())
	return nil
}

func (s *Scanner) giveUp(path string) {
	log.Errorf("scanner: giving up on %s after retry exhaustion", path)
	s.bus.PublishAsync(eventbus.NewCopyCompleted(path, "", 0, 0, eventbus.ResultFail))
}

func (s *Scanner) runPhase2() {
	defer s.wg.Done()

	threshold := s.store.GetInt("watch_threshold")
	resetInterval := time.Duration(s.store.GetInt("watch_reset_interval_sec")) * time.Second
	s.batch = NewWatchBatch(threshold, resetInterval, s.drainBatch)

	w, ok := s.startWatcher()
	if !ok {
		return
	}

	for {
		select {
		case <-s.stopCh:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Errorf("scanner: watch overflow on %s, restarting phase 1", s.serial)
				next, restarted := s.restartPhase1()
				if !restarted {
					return
				}
				w = next
				continue
			}
			log.Errorf("scanner: watch error on %s: %v", s.serial, err)
		}
	}
}

// startWatcher creates the fsnotify.Watcher, publishes it to s.watcher
// under lock (so Stop can close it from another goroutine), and seeds
// it with the current directory tree.
func (s *Scanner) startWatcher() (*fsnotify.Watcher, bool) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("scanner: create watcher for %s: %v", s.serial, err)
		return nil, false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		w.Close()
		return nil, false
	}
	s.watcher = w
	s.mu.Unlock()

	if err := s.addTreeWatches(w, s.mountPoint); err != nil {
		log.Errorf("scanner: watch %s: %v", s.mountPoint, err)
	}
	return w, true
}

func (s *Scanner) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			s.mu.Lock()
			w := s.watcher
			s.mu.Unlock()
			if w != nil {
				if err := s.addTreeWatches(w, ev.Name); err != nil {
					log.Errorf("scanner: watch new dir %s: %v", ev.Name, err)
				}
			}
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
		s.batch.Add(ev.Name)
	}
}

func (s *Scanner) addTreeWatches(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				log.Errorf("scanner: add watch %s: %v", path, err)
			}
		}
		return nil
	})
}

func (s *Scanner) drainBatch(paths []string) {
	for _, p := range paths {
		if err := s.submitPath(p); err != nil {
			s.retry.Enqueue(p)
		}
	}
}

// restartPhase1 re-runs the initial walk then opens a fresh watcher,
// per spec §4.E's OVERFLOW handling. It returns the new watcher for
// runPhase2's loop to switch to, or ok=false if the scanner should
// stop (either on stop request or an unrecoverable enumeration error).
func (s *Scanner) restartPhase1() (*fsnotify.Watcher, bool) {
	s.mu.Lock()
	old := s.watcher
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if err := s.walk(s.mountPoint); err != nil {
		log.Errorf("scanner: phase 1 restart failed for %s: %v", s.serial, err)
		s.manager.MarkUnavailable(s.serial)
		return nil, false
	}
	return s.startWatcher()
}
