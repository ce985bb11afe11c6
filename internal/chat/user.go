package chat

import (
	"context"
	"fmt"
	"log"
	"sync"

	"zufan/internal/models"
)

// UserStore mirrors the conversation list to the session service while
// keeping local storage updated as an offline fallback. Remote reads
// happen on load and on first activation of a conversation (hydration);
// remote writes gate creation and deletion but never message appends,
// which the outbox mirrors in the background.
type UserStore struct {
	baseStore
	remote   Remote
	user     Authenticated
	hydrated map[string]bool
	wg       sync.WaitGroup
}

func NewUserStore(local Persistence, remote Remote, user Authenticated) *UserStore {
	return &UserStore{
		baseStore: baseStore{local: local},
		remote:    remote,
		user:      user,
		hydrated:  make(map[string]bool),
	}
}

func (s *UserStore) Identity() Identity { return s.user }

// Load pulls the session summaries, picks the previously active id if
// it still exists (else the most recently updated session), and fetches
// full messages for that one conversation only; the rest stay greeting
// stubs until first activation. Fails open: any remote error during
// load falls back to the local-storage snapshot.
func (s *UserStore) Load(ctx context.Context) error {
	summaries, err := s.remote.ListSessions(ctx)
	if err != nil {
		log.Printf("load sessions from service: %v", err)
		return s.loadLocal()
	}

	if len(summaries) == 0 {
		conv := defaultConversation(newConversationID(), defaultTitle(1))
		if err := s.remote.CreateSession(ctx, conv.ID, conv.Title); err != nil {
			log.Printf("create first session: %v", err)
			return s.loadLocal()
		}
		s.install(State{Conversations: []models.Conversation{conv}, ActiveID: conv.ID}, conv.ID)
		return nil
	}

	target := summaries[0].ID
	if prev, ok, _ := s.local.Load(); ok && prev.ActiveID != "" {
		for _, sum := range summaries {
			if sum.ID == prev.ActiveID {
				target = prev.ActiveID
				break
			}
		}
	}

	convs := make([]models.Conversation, 0, len(summaries))
	for _, sum := range summaries {
		conv := models.Conversation{ID: sum.ID, Title: sum.Title, Messages: []models.Message{greetingMessage()}}
		if sum.ID == target {
			full, err := s.remote.GetSession(ctx, sum.ID)
			if err != nil {
				log.Printf("load session %s: %v", sum.ID, err)
				return s.loadLocal()
			}
			if len(full.Messages) > 0 {
				conv.Messages = full.Messages
			}
		}
		convs = append(convs, conv)
	}
	s.install(State{Conversations: convs, ActiveID: target}, target)
	return nil
}

func (s *UserStore) install(st State, hydratedID string) {
	s.mu.Lock()
	s.state = st
	s.hydrated[hydratedID] = true
	s.persistLocked()
	s.mu.Unlock()
}

// SwitchActive activates the conversation synchronously. When the
// target was never hydrated it kicks off a background fetch of the full
// message list, replacing the greeting stub in place once it resolves.
// Hydration runs at most once per conversation per store lifetime.
func (s *UserStore) SwitchActive(ctx context.Context, id string) error {
	s.mu.Lock()
	if !s.state.has(id) {
		s.mu.Unlock()
		return ErrNotFound
	}
	st := s.state.clone()
	st.ActiveID = id
	s.state = st
	s.persistLocked()

	i := s.state.indexOf(id)
	need := !s.hydrated[id] && isGreetingStub(s.state.Conversations[i])
	if need {
		s.hydrated[id] = true
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if need {
		hctx := context.WithoutCancel(ctx)
		go func() {
			defer s.wg.Done()
			s.hydrate(hctx, id)
		}()
	}
	return nil
}

func (s *UserStore) hydrate(ctx context.Context, id string) {
	full, err := s.remote.GetSession(ctx, id)
	if err != nil {
		log.Printf("hydrate session %s: %v", id, err)
		return
	}
	msgs := full.Messages
	if len(msgs) == 0 {
		msgs = []models.Message{greetingMessage()}
	}
	s.mu.Lock()
	if i := s.state.indexOf(id); i >= 0 {
		st := s.state.clone()
		st.Conversations[i].Messages = msgs
		s.state = st
		s.persistLocked()
	}
	s.mu.Unlock()
}

// CreateConversation registers the session remotely first; a remote
// failure aborts with no local mutation.
func (s *UserStore) CreateConversation(ctx context.Context) (models.Conversation, error) {
	s.mu.RLock()
	title := defaultTitle(len(s.state.Conversations) + 1)
	s.mu.RUnlock()
	conv := defaultConversation(newConversationID(), title)

	if err := s.remote.CreateSession(ctx, conv.ID, conv.Title); err != nil {
		return models.Conversation{}, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	st := s.state.clone()
	st.Conversations = append(st.Conversations, conv)
	st.ActiveID = conv.ID
	s.state = st
	s.hydrated[conv.ID] = true
	s.persistLocked()
	s.mu.Unlock()
	return conv, nil
}

// DeleteConversation deletes remotely first; a remote failure aborts
// with state unchanged. When the last conversation goes away the
// synthesized replacement is registered remotely best-effort.
func (s *UserStore) DeleteConversation(ctx context.Context, id string) error {
	if err := s.remote.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.mu.Lock()
	created, err := s.removeLocked(id)
	if err == nil {
		delete(s.hydrated, id)
		if created.ID != "" {
			s.hydrated[created.ID] = true
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if created.ID != "" {
		s.wg.Add(1)
		cctx := context.WithoutCancel(ctx)
		go func() {
			defer s.wg.Done()
			if err := s.remote.CreateSession(cctx, created.ID, created.Title); err != nil {
				log.Printf("create replacement session %s: %v", created.ID, err)
			}
		}()
	}
	return nil
}

// Wait blocks until background hydration and replacement-session
// creation kicked off by this store have finished.
func (s *UserStore) Wait() {
	s.wg.Wait()
}
