package chat

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"zufan/internal/models"
)

// Fixed Amharic strings the assistant shows. These are user-facing
// product copy; keep them byte-identical across clients.
const (
	// Greeting opens every empty conversation.
	Greeting = "ጤና ይስጥልኝ! እኔ ዝፋን ነኝ። በኢትዮጵያ የሕግ ጉዳዮች ላይ የተዘጋጁ ሰነዶችን መሠረት አድርጌ ጥያቄዎችዎን ለመመለስ ዝግጁ ነኝ። እንዴት ልርዳዎት?"
	// ReplyFailed replaces an assistant reply that could not be produced.
	ReplyFailed = "ይቅርታ፣ ምላሽ ለመስጠት ችግር አጋጥሞኛል። እባክዎ ትንሽ ቆይተው እንደገና ይሞክሩ።"

	titleWord = "ውይይት"
)

// State is the durable client state: every conversation plus which one
// is on screen. It is the unit of local persistence.
type State struct {
	Conversations []models.Conversation `json:"conversations"`
	ActiveID      string                `json:"active_id"`
}

func (s State) clone() State {
	out := State{ActiveID: s.ActiveID}
	if s.Conversations == nil {
		return out
	}
	out.Conversations = make([]models.Conversation, len(s.Conversations))
	for i, conv := range s.Conversations {
		copied := conv
		copied.Messages = append([]models.Message(nil), conv.Messages...)
		out.Conversations[i] = copied
	}
	return out
}

func (s State) indexOf(id string) int {
	for i, conv := range s.Conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

func (s State) has(id string) bool {
	return s.indexOf(id) >= 0
}

func defaultTitle(n int) string {
	return fmt.Sprintf("%s %d", titleWord, n)
}

func greetingMessage() models.Message {
	return models.Message{Role: models.RoleAssistant, Content: Greeting}
}

func defaultConversation(id string, title string) models.Conversation {
	return models.Conversation{
		ID:       id,
		Title:    title,
		Messages: []models.Message{greetingMessage()},
	}
}

// isGreetingStub reports whether a conversation still holds only its
// initial greeting, i.e. was never hydrated and never chatted in.
func isGreetingStub(conv models.Conversation) bool {
	return len(conv.Messages) == 1 &&
		conv.Messages[0].Role == models.RoleAssistant &&
		conv.Messages[0].Content == Greeting
}

var lastConversationID atomic.Int64

// newConversationID returns a millisecond-timestamp id, nudged forward
// when two conversations are allocated within the same millisecond so
// ids stay unique within the process.
func newConversationID() string {
	now := time.Now().UnixMilli()
	for {
		last := lastConversationID.Load()
		if now <= last {
			now = last + 1
		}
		if lastConversationID.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}
