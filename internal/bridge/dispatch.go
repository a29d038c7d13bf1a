package bridge

import (
	"encoding/json"
	"sync"
)

// dispatcher runs request lines in per-session lanes. Lines that name the
// same session_id are handled one at a time in arrival order; different
// sessions proceed in parallel. A lane's goroutine exits once its queue is
// empty.
type dispatcher struct {
	handle func(line []byte)

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

type lane struct {
	pending [][]byte
}

func newDispatcher(handle func(line []byte)) *dispatcher {
	return &dispatcher{handle: handle, lanes: make(map[string]*lane)}
}

// laneKey returns the session_id of line. Lines without one, including
// malformed lines, share the "" lane.
func laneKey(line []byte) string {
	var peek struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(line, &peek); err != nil {
		return ""
	}
	return peek.SessionID
}

func (d *dispatcher) submit(line []byte) {
	key := laneKey(line)

	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lanes[key]; ok {
		l.pending = append(l.pending, line)
		return
	}
	l := &lane{pending: [][]byte{line}}
	d.lanes[key] = l
	d.wg.Add(1)
	go d.drain(key, l)
}

func (d *dispatcher) drain(key string, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, key)
			d.mu.Unlock()
			return
		}
		line := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		d.mu.Unlock()

		d.handle(line)
	}
}

// wait blocks until every submitted line has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
