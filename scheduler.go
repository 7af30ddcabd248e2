// scheduler.go: Change-driven reparsing of nodeconf config files
//
// Philosophy:
// - One goroutine, one timer: a reparse runs to completion before the timer
//   is armed again, so two reparses never overlap
// - The interval is itself a setting and is read again on every re-arm
// - Missing or unreadable files mean "nothing to do", never an error
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// DefaultFileTimeout is the reparse interval used when no filetimeout
// setting is defined.
const DefaultFileTimeout = 15 * time.Second

// fileTimeoutSetting names the setting holding the reparse interval in
// seconds.
const fileTimeoutSetting = "filetimeout"

// Load reads and parses every configured file. Missing files are skipped;
// a file that cannot be parsed is an error, since there is nothing to fall
// back to.
func (s *Settings) Load() error {
	s.reparseMu.Lock()
	defer s.reparseMu.Unlock()

	docs := make([]*Document, 0, len(s.config.ConfigFiles))
	stamps := make(map[string]time.Time, len(s.config.ConfigFiles))
	for _, path := range s.config.ConfigFiles {
		mtime, err := s.host.FileModTime(path)
		if err != nil {
			s.logger.Debug("config file not loaded", "path", path, "error", err)
			continue
		}
		text, err := s.host.ReadFile(path)
		if err != nil {
			s.logger.Debug("config file not readable", "path", path, "error", err)
			continue
		}
		doc, err := ParseINI(path, text)
		if err != nil {
			s.audit.LogParseFailure(path, err)
			return err
		}
		docs = append(docs, doc)
		stamps[path] = mtime
	}

	coll, err := NewCollection(docs...)
	if err != nil {
		return err
	}
	s.swapFiles(coll.tiers())
	s.stamps = stamps
	for _, doc := range docs {
		s.audit.LogReparse(doc.File())
	}
	return nil
}

// Reparse checks the watched files and, if any changed since the last
// successful parse, parses them all again and swaps in the result.
//
// Any error while checking or reading the files leaves everything as it
// is and returns nil. A parse failure keeps the previous file tiers and is
// returned. After a successful reparse the used sections are materialized
// again and handed to the Applier.
func (s *Settings) Reparse() error {
	return s.ReparseContext(context.Background())
}

// ReparseContext is Reparse with a context for the Applier call.
func (s *Settings) ReparseContext(ctx context.Context) error {
	changed, err := s.reparseFiles()
	if err != nil || !changed {
		return err
	}
	return s.Reuse(ctx)
}

func (s *Settings) reparseFiles() (bool, error) {
	s.reparseMu.Lock()
	defer s.reparseMu.Unlock()

	if len(s.config.ConfigFiles) == 0 {
		return false, nil
	}

	stamps := make(map[string]time.Time, len(s.config.ConfigFiles))
	changed := false
	for _, path := range s.config.ConfigFiles {
		mtime, err := s.host.FileModTime(path)
		if err != nil {
			s.logger.Debug("skipping reparse", "path", path, "error", err)
			return false, nil
		}
		stamps[path] = mtime
		if last, ok := s.stamps[path]; !ok || !last.Equal(mtime) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	docs := make([]*Document, 0, len(s.config.ConfigFiles))
	for _, path := range s.config.ConfigFiles {
		text, err := s.host.ReadFile(path)
		if err != nil {
			s.logger.Debug("skipping reparse", "path", path, "error", err)
			return false, nil
		}
		doc, err := ParseINI(path, text)
		if err != nil {
			s.logger.Warn("config file cannot be parsed, keeping previous values", "path", path, "error", err)
			s.audit.LogParseFailure(path, err)
			return false, err
		}
		docs = append(docs, doc)
	}

	coll, err := NewCollection(docs...)
	if err != nil {
		s.logger.Warn("config files conflict, keeping previous values", "error", err)
		s.audit.LogParseFailure(s.config.ConfigFiles[0], err)
		return false, err
	}

	s.swapFiles(coll.tiers())
	s.stamps = stamps
	for _, path := range s.config.ConfigFiles {
		s.audit.LogReparse(path)
	}
	s.logger.Info("config reparsed", "files", len(docs))
	return true, nil
}

// ReparseInterval returns the current reparse interval from the
// filetimeout setting. Zero or less means reparsing is disabled.
func (s *Settings) ReparseInterval() time.Duration {
	if !s.IsValid(fileTimeoutSetting) {
		return DefaultFileTimeout
	}
	d, err := s.Duration(fileTimeoutSetting)
	if err != nil {
		s.logger.Warn("invalid filetimeout, using default", "error", err)
		return DefaultFileTimeout
	}
	return d
}

// SchedulerStats reports scheduler activity.
type SchedulerStats struct {
	Runs      int64
	Failures  int64
	LastRunAt int64 // unix nanoseconds from the cached clock
}

// Scheduler reparses the config files of a Settings on a timer.
type Scheduler struct {
	settings *Settings

	runs      atomic.Int64
	failures  atomic.Int64
	lastRunAt atomic.Int64

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex
	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a stopped scheduler for s.
func NewScheduler(s *Settings) *Scheduler {
	return &Scheduler{settings: s}
}

// Start arms the timer. With a non-positive interval nothing is started and
// reparsing is left to explicit Reparse calls. A stopped scheduler can be
// started again.
func (sc *Scheduler) Start() error {
	interval := sc.settings.ReparseInterval()
	if interval <= 0 {
		sc.settings.logger.Info("reparse scheduler disabled", "interval", interval)
		return nil
	}
	sc.lifecycle.Lock()
	defer sc.lifecycle.Unlock()
	if !sc.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeSchedulerBusy, "scheduler is already running")
	}
	sc.stopCh = make(chan struct{})
	sc.stoppedCh = make(chan struct{})
	sc.ctx, sc.cancel = context.WithCancel(context.Background())
	go sc.loop(sc.ctx, interval, sc.stopCh, sc.stoppedCh)
	sc.settings.logger.Info("reparse scheduler started", "interval", interval)
	return nil
}

// Stop disarms the timer and waits for an in-flight reparse to finish.
func (sc *Scheduler) Stop() error {
	sc.lifecycle.Lock()
	defer sc.lifecycle.Unlock()
	if !sc.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeSchedulerStopped, "scheduler is not running")
	}
	sc.cancel()
	close(sc.stopCh)
	<-sc.stoppedCh
	return nil
}

// IsRunning reports whether the timer is armed.
func (sc *Scheduler) IsRunning() bool {
	return sc.running.Load()
}

// Close stops the scheduler if it is running.
func (sc *Scheduler) Close() error {
	if !sc.IsRunning() {
		return nil
	}
	return sc.Stop()
}

// Stats returns a snapshot of the scheduler counters.
func (sc *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Runs:      sc.runs.Load(),
		Failures:  sc.failures.Load(),
		LastRunAt: sc.lastRunAt.Load(),
	}
}

func (sc *Scheduler) loop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
			sc.tick(ctx)

			next := sc.settings.ReparseInterval()
			if next <= 0 {
				sc.settings.logger.Info("reparse scheduler disabled", "interval", next)
				sc.running.Store(false)
				return
			}
			timer.Reset(next)
		}
	}
}

// tick runs one reparse. Errors and panics are reported, never propagated.
func (sc *Scheduler) tick(ctx context.Context) {
	s := sc.settings
	defer func() {
		if r := recover(); r != nil {
			sc.failures.Add(1)
			err := errors.New(ErrCodeHookFailed, fmt.Sprintf("reparse panicked: %v", r))
			s.logger.Error("reparse panicked", "panic", r)
			s.reportError(err)
		}
	}()

	sc.runs.Add(1)
	sc.lastRunAt.Store(timecache.CachedTimeNano())

	if err := s.ReparseContext(ctx); err != nil {
		sc.failures.Add(1)
		s.reportError(err)
	}
}

// reportError hands err to the configured ErrorHandler.
func (s *Settings) reportError(err error) {
	if s.config.ErrorHandler == nil {
		return
	}
	path := ""
	if len(s.config.ConfigFiles) > 0 {
		path = s.config.ConfigFiles[0]
	}
	s.config.ErrorHandler(err, path)
}
