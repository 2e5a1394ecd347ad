// ABOUTME: In-memory bot registry behind the relay's bot-control routes
// ABOUTME: Tracks each bot's status as it joins, streams and leaves
package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/streamtap/internal/botctl"
)

type bot struct {
	BotID      string
	ID         string
	MeetingURL string
	Name       string
	Status     botctl.Status
	Created    time.Time
	Updated    time.Time
	streams    int
}

type registry struct {
	mu    sync.Mutex
	bots  map[string]*bot // keyed by both BotID and ID
	admit time.Duration
	now   func() time.Time
}

func newRegistry(admit time.Duration) *registry {
	return &registry{
		bots:  make(map[string]*bot),
		admit: admit,
		now:   time.Now,
	}
}

// create registers a bot in the waiting room and admits it after the admit delay
func (r *registry) create(meetingURL, name string) bot {
	b := &bot{
		BotID:      uuid.New().String(),
		ID:         uuid.New().String(),
		MeetingURL: meetingURL,
		Name:       name,
		Status:     botctl.StatusInWaitingRoom,
		Created:    r.now(),
	}
	b.Updated = b.Created

	r.mu.Lock()
	r.bots[b.BotID] = b
	r.bots[b.ID] = b
	snapshot := *b
	r.mu.Unlock()

	time.AfterFunc(r.admit, func() {
		r.transition(b.BotID, botctl.StatusInWaitingRoom, botctl.StatusInCallNotRecording)
	})
	return snapshot
}

// get looks a bot up by either identifier
func (r *registry) get(id string) (bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok {
		return bot{}, false
	}
	return *b, true
}

// transition moves a bot to next only if it is currently in from
func (r *registry) transition(id string, from, next botctl.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok || b.Status != from {
		return false
	}
	b.Status = next
	b.Updated = r.now()
	return true
}

// streamStarted marks the bot as recording while at least one stream is open
func (r *registry) streamStarted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok || b.Status.Terminal() {
		return false
	}
	b.streams++
	b.Status = botctl.StatusInCallRecording
	b.Updated = r.now()
	return true
}

// streamEnded drops back to not-recording when the last stream closes
func (r *registry) streamEnded(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok {
		return
	}
	b.streams = max(0, b.streams-1)
	if b.streams == 0 && b.Status == botctl.StatusInCallRecording {
		b.Status = botctl.StatusInCallNotRecording
		b.Updated = r.now()
	}
}

// end marks the bot as having left the call
func (r *registry) end(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bots[id]
	if !ok {
		return false
	}
	if !b.Status.Terminal() {
		b.Status = botctl.StatusCallEnded
		b.Updated = r.now()
	}
	return true
}

// list returns each bot once, oldest first
func (r *registry) list() []bot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]bot, 0, len(r.bots)/2)
	for key, b := range r.bots {
		if key == b.BotID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}
