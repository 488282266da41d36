package widgetclient

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/flow"
)

// ErrSuperseded is returned by a config load that a newer load cancelled.
var ErrSuperseded = errors.New("config load superseded")

// Session is one visitor's run through the widget. Each Load cancels the
// load before it, so only the latest fetch reaches the machine.
type Session struct {
	client *Client

	mu      sync.Mutex
	slug    string
	machine *flow.Machine
	cancel  context.CancelFunc
	seq     uint64
}

func NewSession(client *Client, slug string) *Session {
	return &Session{client: client, slug: slug, machine: flow.NewMachine()}
}

// Do runs fn with exclusive access to the machine.
func (s *Session) Do(fn func(m *flow.Machine)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.machine)
}

// Load fetches the config and hands the outcome to the machine.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.seq++
	seq := s.seq
	slug := s.slug
	s.mu.Unlock()

	cfg, err := s.client.FetchConfig(ctx, slug)

	s.mu.Lock()
	defer s.mu.Unlock()
	superseded := ctx.Err() != nil && seq != s.seq
	if seq == s.seq {
		s.cancel = nil
	}
	cancel()
	if superseded {
		return ErrSuperseded
	}
	if err != nil {
		s.machine.Fail(err)
		return err
	}
	s.machine.Load(cfg)
	return nil
}

// Switch points the session at another tenant and loads its config.
func (s *Session) Switch(ctx context.Context, slug string) error {
	s.mu.Lock()
	s.slug = slug
	s.machine.Reset()
	s.mu.Unlock()
	return s.Load(ctx)
}

// Retry refetches after a failed load.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	ok := s.machine.Retry()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Load(ctx)
}

// Reset clears the flow and refetches the config.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	refetch := s.machine.Reset()
	s.mu.Unlock()
	if !refetch {
		return nil
	}
	return s.Load(ctx)
}

// Submit sends the form and moves the machine to Success on acceptance.
func (s *Session) Submit(ctx context.Context, contact flow.Contact) (uuid.UUID, error) {
	s.mu.Lock()
	s.machine.SetContact(contact)
	req, err := s.machine.Submission()
	s.mu.Unlock()
	if err != nil {
		return uuid.Nil, err
	}

	id, err := s.client.Submit(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Complete(id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
