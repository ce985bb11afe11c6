// Package localstate persists chat state to a local bbolt file, the
// device-side cache of conversations for both guest and authenticated
// use.
package localstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"zufan/internal/chat"
	"zufan/internal/models"
)

const (
	bucketName  = "zufan_state"
	keyChats    = "zufan_chats"
	keyActiveID = "zufan_activeChatId"

	fileName = "zufan.db"
)

// Bolt stores chat state in a single bbolt file under dir. The file is
// opened per call so multiple short-lived processes can share it.
type Bolt struct {
	path string
}

func NewBolt(dir string) (*Bolt, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Bolt{path: filepath.Join(dir, fileName)}, nil
}

func (b *Bolt) open() (*bolt.DB, error) {
	return bolt.Open(b.path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
}

// Load reads the saved conversation list and active id. A missing file,
// missing keys, or an unreadable payload all report ok=false with a nil
// error: the caller starts fresh rather than failing.
func (b *Bolt) Load() (chat.State, bool, error) {
	if _, err := os.Stat(b.path); os.IsNotExist(err) {
		return chat.State{}, false, nil
	}
	db, err := b.open()
	if err != nil {
		return chat.State{}, false, fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	var (
		raw    []byte
		active string
	)
	err = db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketName))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get([]byte(keyChats)); v != nil {
			raw = append([]byte(nil), v...)
		}
		active = string(bkt.Get([]byte(keyActiveID)))
		return nil
	})
	if err != nil {
		return chat.State{}, false, fmt.Errorf("read state db: %w", err)
	}
	if len(raw) == 0 {
		return chat.State{}, false, nil
	}

	var convs []models.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		// a corrupt payload is treated like no saved state
		return chat.State{}, false, nil
	}
	if len(convs) == 0 {
		return chat.State{}, false, nil
	}
	return chat.State{Conversations: convs, ActiveID: active}, true, nil
}

// Save writes the full conversation list and active id in one
// transaction.
func (b *Bolt) Save(state chat.State) error {
	raw, err := json.Marshal(state.Conversations)
	if err != nil {
		return fmt.Errorf("encode chats: %w", err)
	}
	db, err := b.open()
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if err := bkt.Put([]byte(keyChats), raw); err != nil {
			return err
		}
		return bkt.Put([]byte(keyActiveID), []byte(state.ActiveID))
	})
}
