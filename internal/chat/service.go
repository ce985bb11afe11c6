package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"zufan/internal/models"
)

// ErrGuestLimit rejects a send once an unauthenticated conversation has
// reached the guest quota of user messages.
var ErrGuestLimit = errors.New("guest message limit reached")

// DefaultGuestLimit is the guest quota of user messages per conversation.
const DefaultGuestLimit = 20

// Fragments is one in-flight assistant reply, consumed fragment by
// fragment until io.EOF.
type Fragments interface {
	Recv() (string, error)
	Close() error
}

// StreamRequest carries the full prior history, oldest first, plus the
// identifying context the backend wants.
type StreamRequest struct {
	Messages  []models.Message
	SessionID string
	UserID    string
}

// StreamFunc opens one assistant reply stream.
type StreamFunc func(ctx context.Context, req StreamRequest) (Fragments, error)

// Mirror receives locally-applied messages for best-effort background
// replication to the session service.
type Mirror interface {
	EnqueueMessage(sessionID string, msg models.Message)
}

// Service runs the send flow: optimistic local appends, streaming
// reconciliation into the conversation that was active when the stream
// started, and fire-and-forget mirroring for authenticated users.
type Service struct {
	store      Store
	stream     StreamFunc
	mirror     Mirror
	guestLimit int

	// OnFragment, when set, observes each applied fragment. The CLI
	// uses it to echo the reply as it arrives.
	OnFragment func(convID, fragment string)
}

func NewService(store Store, stream StreamFunc, mirror Mirror, guestLimit int) *Service {
	if guestLimit <= 0 {
		guestLimit = DefaultGuestLimit
	}
	return &Service{
		store:      store,
		stream:     stream,
		mirror:     mirror,
		guestLimit: guestLimit,
	}
}

// Send appends the user's message to the active conversation, streams
// the assistant reply into a placeholder right behind it, and leaves
// the fixed failure text in place of a reply that never arrived. The
// stream keeps targeting the conversation that was active at send time
// even if the user navigates away mid-reply.
func (s *Service) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	active, ok := s.store.Active()
	if !ok {
		return ErrNotFound
	}
	if _, guest := s.store.Identity().(Guest); guest {
		if countUserMessages(active) >= s.guestLimit {
			return ErrGuestLimit
		}
	}
	convID := active.ID

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(convID, userMsg); err != nil {
		return err
	}
	s.enqueueMirror(convID, userMsg)

	if err := s.store.AppendMessage(convID, models.Message{Role: models.RoleAssistant}); err != nil {
		return err
	}

	req := StreamRequest{
		Messages:  historyFor(active, userMsg),
		SessionID: convID,
	}
	if a, ok := s.store.Identity().(Authenticated); ok {
		req.UserID = a.UserID
	}

	frags, err := s.stream(ctx, req)
	if err != nil {
		return s.failSend(convID, err)
	}
	defer frags.Close()

	var acc strings.Builder
	for {
		fragment, rerr := frags.Recv()
		if fragment != "" {
			acc.WriteString(fragment)
			if s.store.UpdateLastAssistant(convID, acc.String(), nil, false) && s.OnFragment != nil {
				s.OnFragment(convID, fragment)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return s.failSend(convID, rerr)
		}
	}

	final := acc.String()
	if final == "" {
		// the backend completed without saying anything; treat it as a
		// failed reply so no empty bubble survives
		return s.failSend(convID, errors.New("empty reply"))
	}
	s.enqueueMirror(convID, models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   final,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// failSend replaces the in-flight assistant message with the fixed
// failure text. Partial streamed text is discarded: the failure text is
// always the final visible state.
func (s *Service) failSend(convID string, cause error) error {
	s.store.UpdateLastAssistant(convID, ReplyFailed, nil, false)
	s.enqueueMirror(convID, models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   ReplyFailed,
		CreatedAt: time.Now().UTC(),
	})
	return fmt.Errorf("chat stream: %w", cause)
}

func (s *Service) enqueueMirror(convID string, msg models.Message) {
	if s.mirror == nil {
		return
	}
	if _, authed := s.store.Identity().(Authenticated); !authed {
		return
	}
	s.mirror.EnqueueMessage(convID, msg)
}

func countUserMessages(conv models.Conversation) int {
	n := 0
	for _, m := range conv.Messages {
		if m.Role == models.RoleUser {
			n++
		}
	}
	return n
}

// historyFor builds the wire history: every prior message except
// in-flight assistant placeholders, then the new user message, all
// stripped down to role and content.
func historyFor(conv models.Conversation, userMsg models.Message) []models.Message {
	history := make([]models.Message, 0, len(conv.Messages)+1)
	for _, m := range conv.Messages {
		if m.Role == models.RoleAssistant && m.Content == "" {
			continue
		}
		history = append(history, models.Message{Role: m.Role, Content: m.Content})
	}
	return append(history, models.Message{Role: userMsg.Role, Content: userMsg.Content})
}
