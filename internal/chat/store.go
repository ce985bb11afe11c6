package chat

import (
	"context"
	"errors"
	"log"
	"sync"

	"zufan/internal/models"
)

// ErrNotFound marks an operation against a conversation id the store
// does not hold.
var ErrNotFound = errors.New("conversation not found")

// Persistence is the local durable state adapter: the serialized
// conversation list plus the active id. ok is false when nothing
// usable is stored; a corrupt payload counts as absent, never as an
// error.
type Persistence interface {
	Load() (state State, ok bool, err error)
	Save(state State) error
}

// Remote is the authenticated session service as the client sees it.
type Remote interface {
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	CreateSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	AddMessage(ctx context.Context, sessionID string, msg models.Message) error
}

// Store maintains the conversation list and the active id, and keeps
// both durable. GuestStore and UserStore implement it; the send flow
// drives the mutation primitives at the bottom of the interface.
type Store interface {
	Identity() Identity
	Load(ctx context.Context) error
	Snapshot() State
	Active() (models.Conversation, bool)
	SwitchActive(ctx context.Context, id string) error
	CreateConversation(ctx context.Context) (models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AppendMessage(convID string, msg models.Message) error
	UpdateLastAssistant(convID, content string, citations []models.Citation, onlyIfEmpty bool) bool

	// Wait blocks until background hydration and best-effort remote
	// calls started by this store have finished.
	Wait()
}

// baseStore carries the shared state machinery: the list itself,
// copy-and-replace mutation under a mutex, and the unconditional local
// persistence every mutation ends with.
type baseStore struct {
	mu    sync.RWMutex
	state State
	local Persistence
}

// persistLocked writes the current state to local storage. Local
// storage is the offline-continuity fallback, so a write failure is
// logged and otherwise ignored.
func (b *baseStore) persistLocked() {
	if err := b.local.Save(b.state.clone()); err != nil {
		log.Printf("save local state: %v", err)
	}
}

// loadLocal replaces the state with whatever local storage holds,
// falling back to a single default conversation when the stored
// payload is absent, corrupt, or empty.
func (b *baseStore) loadLocal() error {
	st, ok, err := b.local.Load()
	if err != nil {
		log.Printf("load local state: %v", err)
		ok = false
	}
	if !ok || len(st.Conversations) == 0 {
		st = State{Conversations: []models.Conversation{defaultConversation(newConversationID(), defaultTitle(1))}}
	}
	if st.ActiveID == "" || !st.has(st.ActiveID) {
		st.ActiveID = st.Conversations[0].ID
	}
	b.mu.Lock()
	b.state = st
	b.persistLocked()
	b.mu.Unlock()
	return nil
}

func (b *baseStore) Snapshot() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.clone()
}

func (b *baseStore) Active() (models.Conversation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := b.state.indexOf(b.state.ActiveID); i >= 0 {
		return b.state.clone().Conversations[i], true
	}
	if len(b.state.Conversations) > 0 {
		return b.state.clone().Conversations[0], true
	}
	return models.Conversation{}, false
}

// AppendMessage adds a message to the end of the conversation.
func (b *baseStore) AppendMessage(convID string, msg models.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.state.indexOf(convID)
	if i < 0 {
		return ErrNotFound
	}
	st := b.state.clone()
	st.Conversations[i].Messages = append(st.Conversations[i].Messages, msg)
	b.state = st
	b.persistLocked()
	return nil
}

// UpdateLastAssistant overwrites the content of the conversation's last
// message, but only when that message has role assistant. This is the
// guard that keeps a stale stream from scribbling over a conversation
// the user has moved on from. Returns whether an update was applied.
func (b *baseStore) UpdateLastAssistant(convID, content string, citations []models.Citation, onlyIfEmpty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.state.indexOf(convID)
	if i < 0 {
		return false
	}
	msgs := b.state.Conversations[i].Messages
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleAssistant {
		return false
	}
	if onlyIfEmpty && last.Content != "" {
		return false
	}
	st := b.state.clone()
	target := &st.Conversations[i].Messages[len(msgs)-1]
	target.Content = content
	if len(citations) > 0 {
		target.Citations = citations
	}
	b.state = st
	b.persistLocked()
	return true
}

// removeLocked deletes the conversation and re-points the active id.
// When the list empties out it synthesizes a fresh default conversation
// and returns it; otherwise the returned conversation is zero.
func (b *baseStore) removeLocked(id string) (models.Conversation, error) {
	i := b.state.indexOf(id)
	if i < 0 {
		return models.Conversation{}, ErrNotFound
	}
	st := b.state.clone()
	st.Conversations = append(st.Conversations[:i], st.Conversations[i+1:]...)

	var created models.Conversation
	if st.ActiveID == id {
		if len(st.Conversations) > 0 {
			st.ActiveID = st.Conversations[0].ID
		} else {
			created = defaultConversation(newConversationID(), defaultTitle(1))
			st.Conversations = []models.Conversation{created}
			st.ActiveID = created.ID
		}
	}
	b.state = st
	b.persistLocked()
	return created, nil
}
