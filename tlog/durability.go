/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package tlog

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Durability selects when an acknowledged write becomes durable relative to
// the caller receiving its acknowledgment.
type Durability int

const (
	// DurabilityRequest forces a sync before every user-facing write is
	// acknowledged.
	DurabilityRequest Durability = iota
	// DurabilityAsync defers syncing to a time interval owned by a
	// scheduler running alongside the log; appends return as soon as they
	// are buffered.
	DurabilityAsync
)

// asyncDurabilityConfig is the small JSON file an AsyncScheduler watches
// for its sync interval, so an operator can tighten or loosen durability
// without restarting the shard.
type asyncDurabilityConfig struct {
	IntervalMillis int64 `json:"interval_millis"`
}

// AsyncScheduler periodically calls Sync on a Log at an interval that can
// be hot-reloaded from a JSON config file on disk. It is the "external
// scheduler" DurabilityAsync defers to.
type AsyncScheduler struct {
	log         *Log
	configPath  string
	defaultIval time.Duration

	mu       sync.Mutex
	interval time.Duration

	stop    chan struct{}
	stopped sync.Once
}

// NewAsyncScheduler builds a scheduler for log, starting at defaultInterval
// until/unless configPath contains a JSON body overriding it.
func NewAsyncScheduler(log *Log, configPath string, defaultInterval time.Duration) *AsyncScheduler {
	s := &AsyncScheduler{
		log:         log,
		configPath:  configPath,
		defaultIval: defaultInterval,
		interval:    defaultInterval,
		stop:        make(chan struct{}),
	}
	s.reload()
	return s
}

func (s *AsyncScheduler) reload() {
	buf, err := os.ReadFile(s.configPath)
	if err != nil {
		return
	}
	var cfg asyncDurabilityConfig
	if err := json.Unmarshal(buf, &cfg); err != nil || cfg.IntervalMillis <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = time.Duration(cfg.IntervalMillis) * time.Millisecond
	s.mu.Unlock()
}

func (s *AsyncScheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Run drives the sync loop and the config-file watcher until Stop is
// called. Intended to be launched as its own goroutine by the caller.
func (s *AsyncScheduler) Run() {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(s.configPath); err != nil {
			// Config file may not exist yet. The watch is not retried, so
			// the scheduler keeps its current interval for the rest of Run;
			// a config file created later is not picked up.
		}
	}

	timer := time.NewTimer(s.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
			_, _ = s.log.Sync()
			timer.Reset(s.currentInterval())
		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reload()
			}
		}
	}
}

// watcherEvents returns w.Events, or a nil channel (which blocks forever in
// a select) when w is nil, so Run's select works whether or not fsnotify
// initialized successfully.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

// Stop ends the scheduler's Run loop. Safe to call more than once.
func (s *AsyncScheduler) Stop() {
	s.stopped.Do(func() { close(s.stop) })
}
