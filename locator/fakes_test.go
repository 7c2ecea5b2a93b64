package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timzifer/repolocator/repository"
)

var errRejected = errors.New("credentials rejected")

type fakeHandle struct {
	name string

	mu          sync.Mutex
	record      repository.Record
	connected   bool
	connects    int
	disconnects int
	username    string
	password    string
	accept      map[string]string
	panicOnDial bool
	// panicOnHangup and panicOnIdentity make Disconnect and Identity panic.
	panicOnHangup   bool
	panicOnIdentity bool
}

func newFakeHandle(name string, users map[string]string) *fakeHandle {
	return &fakeHandle{name: name, accept: users}
}

func (h *fakeHandle) Init(rec repository.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record = rec
	return nil
}

func (h *fakeHandle) Connect(_ context.Context, username, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicOnDial {
		panic("dial exploded")
	}
	h.connects++
	h.username = username
	h.password = password
	if h.accept != nil {
		if want, ok := h.accept[username]; !ok || want != password {
			return errRejected
		}
	}
	h.connected = true
	return nil
}

func (h *fakeHandle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects++
	if h.panicOnHangup {
		panic("hangup exploded")
	}
	h.connected = false
	return nil
}

func (h *fakeHandle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *fakeHandle) Identity() string {
	if h.panicOnIdentity {
		panic("identity exploded")
	}
	return "fake:" + h.name
}

func (h *fakeHandle) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, h.disconnects
}

type fakeSource struct {
	records map[string]repository.Record
	readErr error
	reads   int
}

func newFakeSource(records ...repository.Record) *fakeSource {
	src := &fakeSource{records: make(map[string]repository.Record)}
	for _, rec := range records {
		src.records[rec.Name] = rec
	}
	return src
}

func (s *fakeSource) ReadData() error {
	s.reads++
	if s.readErr != nil {
		return fmt.Errorf("%w: %w", repository.ErrMetadataRead, s.readErr)
	}
	return nil
}

func (s *fakeSource) FindByName(name string) (repository.Record, bool) {
	rec, ok := s.records[name]
	return rec, ok
}

// fakeLoader hands out a new fakeHandle per load that accepts the users
// listed under the record's "users" setting.
type fakeLoader struct {
	loadErr error
	created []*fakeHandle
}

func (l *fakeLoader) Load(rec repository.Record) (repository.Handle, error) {
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	var users map[string]string
	if raw, ok := rec.Settings["users"].(map[string]string); ok {
		users = raw
	}
	handle := newFakeHandle(rec.Name, users)
	l.created = append(l.created, handle)
	return handle, nil
}

func (l *fakeLoader) last() *fakeHandle {
	if len(l.created) == 0 {
		return nil
	}
	return l.created[len(l.created)-1]
}

type recordingCollector struct {
	mu          sync.Mutex
	attempts    int
	failures    map[string]int
	disconnects int
	connected   map[string]bool
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{failures: map[string]int{}, connected: map[string]bool{}}
}

func (c *recordingCollector) IncHotReload(string) {}

func (c *recordingCollector) IncConnectAttempt(string) {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

func (c *recordingCollector) IncFailure(_ string, stage string) {
	c.mu.Lock()
	c.failures[stage]++
	c.mu.Unlock()
}

func (c *recordingCollector) IncDisconnect(string) {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *recordingCollector) SetConnected(repo string, connected bool) {
	c.mu.Lock()
	c.connected[repo] = connected
	c.mu.Unlock()
}

func salesRecord() repository.Record {
	return repository.Record{
		Name:     "sales-repo",
		Type:     "fake",
		Settings: map[string]any{"users": map[string]string{"alice": "secret", "bob": "hunter2"}},
	}
}
