package watcher

import (
	"sync"
	"time"
)

// Op classifies what happened to a document on disk.
type Op int

const (
	// OpUpsert means the file was created or rewritten and should be
	// (re)indexed.
	OpUpsert Op = iota
	// OpRemove means the file is gone and its chunks should be dropped.
	OpRemove
)

// Event is a debounced change to a single document.
type Event struct {
	Path string
	Op   Op
}

// debouncer coalesces rapid events for the same path so that an editor
// save (create + several writes + chmod) turns into one upsert. Rules:
//
//   - upsert + upsert = upsert
//   - upsert + remove = remove
//   - remove + upsert = upsert (file was replaced)
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]Op
	timer   *time.Timer
	output  chan []Event
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]Op),
		output:  make(chan []Event, 8),
	}
}

func (d *debouncer) add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	// The latest operation wins per path.
	d.pending[path] = op

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for path, op := range d.pending {
		batch = append(batch, Event{Path: path, Op: op})
	}
	d.pending = make(map[string]Op)

	select {
	case d.output <- batch:
	default:
	}
}

func (d *debouncer) events() <-chan []Event { return d.output }

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
