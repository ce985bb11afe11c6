package chat

import (
	"context"

	"zufan/internal/models"
)

// GuestStore keeps everything in local storage; nothing ever leaves
// the machine.
type GuestStore struct {
	baseStore
}

func NewGuestStore(local Persistence) *GuestStore {
	return &GuestStore{baseStore: baseStore{local: local}}
}

func (s *GuestStore) Identity() Identity { return Guest{} }

// Load reads the persisted state, initializing a single default
// conversation when nothing usable is stored.
func (s *GuestStore) Load(ctx context.Context) error {
	return s.loadLocal()
}

// SwitchActive activates the conversation. Guests have no remote state
// to hydrate, so the switch is purely local.
func (s *GuestStore) SwitchActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.has(id) {
		return ErrNotFound
	}
	st := s.state.clone()
	st.ActiveID = id
	s.state = st
	s.persistLocked()
	return nil
}

// CreateConversation adds a fresh default conversation and activates it.
func (s *GuestStore) CreateConversation(ctx context.Context) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := defaultConversation(newConversationID(), defaultTitle(len(s.state.Conversations)+1))
	st := s.state.clone()
	st.Conversations = append(st.Conversations, conv)
	st.ActiveID = conv.ID
	s.state = st
	s.persistLocked()
	return conv, nil
}

// DeleteConversation removes the conversation, synthesizing a fresh
// default one when the last conversation goes away.
func (s *GuestStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.removeLocked(id)
	return err
}

func (s *GuestStore) Wait() {}
