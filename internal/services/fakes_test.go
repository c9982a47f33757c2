package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"sweepnspect/internal/models"
	"sweepnspect/internal/store"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestStore(t *testing.T) *store.JSONStore {
	t.Helper()
	s, err := store.NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

type broadcastEvent struct {
	Type string
	Data interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (h *fakeHub) Broadcast(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcastEvent{Type: eventType, Data: data})
}

func (h *fakeHub) ofType(eventType string) []broadcastEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []broadcastEvent
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeSMS struct {
	mu         sync.Mutex
	configured bool
	fail       error
	sent       []string
}

func (f *fakeSMS) Configured() bool { return f.configured }

func (f *fakeSMS) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSMS) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeBridge struct {
	mu       sync.Mutex
	fail     error
	subjects []string
}

func (f *fakeBridge) SendTicket(ctx context.Context, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return f.fail
}

func (f *fakeBridge) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

type relayMessage struct {
	From, To, Body string
}

type relayTask struct {
	Title, Assignee, Priority string
}

type fakeRelay struct {
	mu       sync.Mutex
	failSend error
	messages []relayMessage
	tasks    []relayTask
}

func (f *fakeRelay) SendMessage(ctx context.Context, from, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return f.failSend
	}
	f.messages = append(f.messages, relayMessage{From: from, To: to, Body: body})
	return nil
}

func (f *fakeRelay) CreateTask(ctx context.Context, title, assignee, priority string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, relayTask{Title: title, Assignee: assignee, Priority: priority})
	return "task-1", nil
}

// brokenStore 读写都失败
type brokenStore struct{}

var errDiskFull = errors.New("disk full")

func (brokenStore) Load(ctx context.Context, name string) ([]byte, error) { return nil, nil }
func (brokenStore) Save(ctx context.Context, name string, data []byte) error {
	return errDiskFull
}
func (brokenStore) Lock(name string) func() { return func() {} }
func (brokenStore) Close() error            { return nil }

type recordedEvent struct {
	Event string
	Data  interface{}
}

type fakeEvaluator struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, eventType string, data interface{}) []models.AutomationLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Event: eventType, Data: data})
	return nil
}

func (f *fakeEvaluator) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

// blockingSMS 在 release 关闭前阻塞 Send
type blockingSMS struct {
	fakeSMS
	entered chan struct{}
	release chan struct{}
}

func newBlockingSMS() *blockingSMS {
	return &blockingSMS{
		fakeSMS: fakeSMS{configured: true},
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingSMS) Send(ctx context.Context, text string) error {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeSMS.Send(ctx, text)
}
