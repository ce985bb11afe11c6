package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"zufan/internal/models"
)

// memPersistence is an in-memory stand-in for the local state file.
type memPersistence struct {
	mu      sync.Mutex
	st      State
	ok      bool
	loadErr error
	saveErr error
	saves   int
}

func (m *memPersistence) Load() (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, m.ok, m.loadErr
}

func (m *memPersistence) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.st = st
	m.ok = true
	m.saves++
	return nil
}

func TestGuestLoadFreshState(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := store.Snapshot()
	if len(st.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(st.Conversations))
	}
	conv := st.Conversations[0]
	if conv.Title != "ውይይት 1" {
		t.Fatalf("unexpected title %q", conv.Title)
	}
	if st.ActiveID != conv.ID {
		t.Fatalf("active id %q does not match conversation %q", st.ActiveID, conv.ID)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Role != models.RoleAssistant || conv.Messages[0].Content != Greeting {
		t.Fatalf("expected greeting stub, got %+v", conv.Messages)
	}
}

func TestGuestLoadRestoresSavedState(t *testing.T) {
	local := &memPersistence{}
	store := NewGuestStore(local)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	created, err := store.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if created.Title != "ውይይት 2" {
		t.Fatalf("unexpected title %q", created.Title)
	}
	before := store.Snapshot()

	// a second store over the same persistence sees the same state
	again := NewGuestStore(local)
	if err := again.Load(context.Background()); err != nil {
		t.Fatalf("Load again: %v", err)
	}
	after := again.Snapshot()
	if after.ActiveID != before.ActiveID {
		t.Fatalf("active id changed: %q vs %q", after.ActiveID, before.ActiveID)
	}
	if len(after.Conversations) != len(before.Conversations) {
		t.Fatalf("conversation count changed: %d vs %d", len(after.Conversations), len(before.Conversations))
	}
	for i := range after.Conversations {
		if after.Conversations[i].ID != before.Conversations[i].ID {
			t.Fatalf("conversation %d id changed", i)
		}
	}
}

func TestGuestLoadIgnoresCorruptActiveID(t *testing.T) {
	local := &memPersistence{
		st: State{
			Conversations: []models.Conversation{defaultConversation("100", "ውይይት 1")},
			ActiveID:      "missing",
		},
		ok: true,
	}
	store := NewGuestStore(local)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st := store.Snapshot(); st.ActiveID != "100" {
		t.Fatalf("active id not repointed, got %q", st.ActiveID)
	}
}

func TestGuestSwitchActiveUnknownID(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.SwitchActive(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGuestDeleteLastConversationSynthesizesDefault(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	only := store.Snapshot().Conversations[0]
	if err := store.DeleteConversation(context.Background(), only.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	st := store.Snapshot()
	if len(st.Conversations) != 1 {
		t.Fatalf("expected replacement conversation, got %d", len(st.Conversations))
	}
	fresh := st.Conversations[0]
	if fresh.ID == only.ID {
		t.Fatalf("replacement reused the deleted id")
	}
	if fresh.Title != "ውይይት 1" || !isGreetingStub(fresh) {
		t.Fatalf("replacement is not a default conversation: %+v", fresh)
	}
	if st.ActiveID != fresh.ID {
		t.Fatalf("replacement not activated")
	}
}

func TestGuestDeleteInactiveKeepsActive(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := store.Snapshot().Conversations[0]
	second, err := store.CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := store.DeleteConversation(context.Background(), first.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	st := store.Snapshot()
	if st.ActiveID != second.ID {
		t.Fatalf("active id moved off %q to %q", second.ID, st.ActiveID)
	}
	if len(st.Conversations) != 1 || st.Conversations[0].ID != second.ID {
		t.Fatalf("unexpected conversations after delete: %+v", st.Conversations)
	}
}

func TestUpdateLastAssistantGuards(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	conv, _ := store.Active()

	// last message is the greeting (assistant): update applies
	if !store.UpdateLastAssistant(conv.ID, "hello", nil, false) {
		t.Fatalf("expected update over assistant message")
	}
	// onlyIfEmpty refuses once content is set
	if store.UpdateLastAssistant(conv.ID, "again", nil, true) {
		t.Fatalf("onlyIfEmpty updated a non-empty message")
	}
	// a trailing user message blocks updates entirely
	if err := store.AppendMessage(conv.ID, models.Message{ID: "u1", Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if store.UpdateLastAssistant(conv.ID, "stale", nil, false) {
		t.Fatalf("update applied over a user message")
	}
	if store.UpdateLastAssistant("missing", "x", nil, false) {
		t.Fatalf("update applied to unknown conversation")
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	store := NewGuestStore(&memPersistence{})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := store.Snapshot()
	snap.Conversations[0].Messages[0].Content = "mutated"
	if got := store.Snapshot().Conversations[0].Messages[0].Content; got != Greeting {
		t.Fatalf("snapshot mutation leaked into store: %q", got)
	}
}

// fakeRemote scripts the session service.
type fakeRemote struct {
	mu        sync.Mutex
	summaries []models.SessionSummary
	sessions  map[string]*models.Session

	listErr   error
	getErr    error
	createErr error
	deleteErr error

	getCalls    map[string]int
	createCalls []string
	deleteCalls []string
	addCalls    []models.Message
	addErr      error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		sessions: make(map[string]*models.Session),
		getCalls: make(map[string]int),
	}
}

func (f *fakeRemote) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.SessionSummary(nil), f.summaries...), nil
}

func (f *fakeRemote) GetSession(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[id]++
	if f.getErr != nil {
		return nil, f.getErr
	}
	sess, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	copied := *sess
	return &copied, nil
}

func (f *fakeRemote) CreateSession(ctx context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.createCalls = append(f.createCalls, id)
	f.sessions[id] = &models.Session{ID: id, Title: title}
	f.summaries = append([]models.SessionSummary{{ID: id, Title: title}}, f.summaries...)
	return nil
}

func (f *fakeRemote) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleteCalls = append(f.deleteCalls, id)
	delete(f.sessions, id)
	return nil
}

func (f *fakeRemote) AddMessage(ctx context.Context, sessionID string, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.addCalls = append(f.addCalls, msg)
	return nil
}

func (f *fakeRemote) getCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[id]
}

func TestUserLoadCreatesFirstSessionRemotely(t *testing.T) {
	remote := newFakeRemote()
	store := NewUserStore(&memPersistence{}, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := store.Snapshot()
	if len(st.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(st.Conversations))
	}
	if len(remote.createCalls) != 1 || remote.createCalls[0] != st.Conversations[0].ID {
		t.Fatalf("first conversation not registered remotely: %v", remote.createCalls)
	}
}

func TestUserLoadFailsOpenToLocalState(t *testing.T) {
	local := &memPersistence{
		st: State{
			Conversations: []models.Conversation{defaultConversation("42", "ውይይት 1")},
			ActiveID:      "42",
		},
		ok: true,
	}
	remote := newFakeRemote()
	remote.listErr = errors.New("connection refused")
	store := NewUserStore(local, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load should fail open, got %v", err)
	}
	st := store.Snapshot()
	if len(st.Conversations) != 1 || st.Conversations[0].ID != "42" {
		t.Fatalf("local state not restored: %+v", st.Conversations)
	}
}

func TestUserLoadPrefersPreviousActive(t *testing.T) {
	local := &memPersistence{
		st: State{
			Conversations: []models.Conversation{defaultConversation("b", "ውይይት 2")},
			ActiveID:      "b",
		},
		ok: true,
	}
	remote := newFakeRemote()
	remote.summaries = []models.SessionSummary{{ID: "a", Title: "ውይይት 1"}, {ID: "b", Title: "ውይይት 2"}}
	remote.sessions["a"] = &models.Session{ID: "a", Title: "ውይይት 1"}
	remote.sessions["b"] = &models.Session{
		ID:    "b",
		Title: "ውይይት 2",
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "ሰላም"},
			{ID: "m2", Role: models.RoleAssistant, Content: "reply"},
		},
	}
	store := NewUserStore(local, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := store.Snapshot()
	if st.ActiveID != "b" {
		t.Fatalf("previous active not restored, got %q", st.ActiveID)
	}
	// only the active conversation is hydrated
	if got := remote.getCount("b"); got != 1 {
		t.Fatalf("active session fetched %d times", got)
	}
	if got := remote.getCount("a"); got != 0 {
		t.Fatalf("inactive session fetched eagerly")
	}
	i := st.indexOf("b")
	if len(st.Conversations[i].Messages) != 2 {
		t.Fatalf("active conversation not hydrated: %+v", st.Conversations[i].Messages)
	}
	if j := st.indexOf("a"); !isGreetingStub(st.Conversations[j]) {
		t.Fatalf("inactive conversation is not a greeting stub")
	}
}

func TestUserSwitchActiveHydratesOnce(t *testing.T) {
	remote := newFakeRemote()
	remote.summaries = []models.SessionSummary{{ID: "a", Title: "ውይይት 1"}, {ID: "b", Title: "ውይይት 2"}}
	remote.sessions["a"] = &models.Session{ID: "a", Title: "ውይይት 1"}
	remote.sessions["b"] = &models.Session{
		ID:       "b",
		Title:    "ውይይት 2",
		Messages: []models.Message{{ID: "m1", Role: models.RoleUser, Content: "hi"}},
	}
	store := NewUserStore(&memPersistence{}, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.SwitchActive(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	store.Wait()
	st := store.Snapshot()
	if i := st.indexOf("b"); len(st.Conversations[i].Messages) != 1 || st.Conversations[i].Messages[0].Content != "hi" {
		t.Fatalf("conversation b not hydrated: %+v", st.Conversations[st.indexOf("b")].Messages)
	}
	// switching away and back must not refetch
	if err := store.SwitchActive(context.Background(), "a"); err != nil {
		t.Fatalf("SwitchActive a: %v", err)
	}
	if err := store.SwitchActive(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchActive b: %v", err)
	}
	store.Wait()
	if got := remote.getCount("b"); got != 1 {
		t.Fatalf("session b hydrated %d times", got)
	}
}

func TestUserSwitchActiveHydrationFailureStaysQuiet(t *testing.T) {
	remote := newFakeRemote()
	remote.summaries = []models.SessionSummary{{ID: "a", Title: "ውይይት 1"}, {ID: "b", Title: "ውይይት 2"}}
	remote.sessions["a"] = &models.Session{ID: "a", Title: "ውይይት 1"}
	store := NewUserStore(&memPersistence{}, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	remote.mu.Lock()
	remote.getErr = errors.New("boom")
	remote.mu.Unlock()
	if err := store.SwitchActive(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	store.Wait()
	st := store.Snapshot()
	if i := st.indexOf("b"); !isGreetingStub(st.Conversations[i]) {
		t.Fatalf("failed hydration mutated the stub")
	}
	// hydration is attempted at most once even when it failed
	remote.mu.Lock()
	remote.getErr = nil
	remote.mu.Unlock()
	if err := store.SwitchActive(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchActive again: %v", err)
	}
	store.Wait()
	if got := remote.getCount("b"); got != 1 {
		t.Fatalf("hydration retried, %d fetches", got)
	}
}

func TestUserCreateConversationAbortsOnRemoteError(t *testing.T) {
	remote := newFakeRemote()
	store := NewUserStore(&memPersistence{}, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := store.Snapshot()
	remote.mu.Lock()
	remote.createErr = errors.New("service unavailable")
	remote.mu.Unlock()
	if _, err := store.CreateConversation(context.Background()); err == nil {
		t.Fatalf("expected error from remote create")
	}
	after := store.Snapshot()
	if len(after.Conversations) != len(before.Conversations) || after.ActiveID != before.ActiveID {
		t.Fatalf("state mutated despite remote failure")
	}
}

func TestUserDeleteConversationRemoteFirst(t *testing.T) {
	remote := newFakeRemote()
	store := NewUserStore(&memPersistence{}, remote, Authenticated{UserID: "u1"})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	first := store.Snapshot().Conversations[0]

	remote.mu.Lock()
	remote.deleteErr = errors.New("service unavailable")
	remote.mu.Unlock()
	if err := store.DeleteConversation(context.Background(), first.ID); err == nil {
		t.Fatalf("expected error from remote delete")
	}
	if st := store.Snapshot(); len(st.Conversations) != 1 || st.Conversations[0].ID != first.ID {
		t.Fatalf("state mutated despite remote failure")
	}

	remote.mu.Lock()
	remote.deleteErr = nil
	remote.mu.Unlock()
	if err := store.DeleteConversation(context.Background(), first.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	store.Wait()
	st := store.Snapshot()
	if len(st.Conversations) != 1 || st.Conversations[0].ID == first.ID {
		t.Fatalf("replacement conversation missing: %+v", st.Conversations)
	}
	// the synthesized replacement gets registered remotely
	remote.mu.Lock()
	defer remote.mu.Unlock()
	found := false
	for _, id := range remote.createCalls {
		if id == st.Conversations[0].ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("replacement %q never registered remotely", st.Conversations[0].ID)
	}
}

func TestConversationIDsAreMonotonic(t *testing.T) {
	prev := newConversationID()
	for i := 0; i < 100; i++ {
		next := newConversationID()
		if next <= prev && len(next) == len(prev) {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}
