package session

import (
	"sync"

	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
)

// Event is published after a command changed the scene, and when a job
// finishes.
type Event struct {
	Command string          `json:"command"`
	Scene   *scene.Snapshot `json:"scene,omitempty"`
	Job     *jobs.Job       `json:"job,omitempty"`
}

type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// Subscribe returns a channel receiving every event published from now on
// and a function that cancels the subscription. A subscriber that falls
// more than buf events behind misses events.
func (s *Session) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	b := &s.events
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) publish(ev Event) {
	b := &s.events
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			s.log.Debug("event dropped for slow subscriber", "subscriber", id, "command", ev.Command)
		}
	}
}

// publishScene must run on the loop.
func (s *Session) publishScene(command string) {
	snap := s.scene.Snapshot()
	s.publish(Event{Command: command, Scene: &snap})
}
