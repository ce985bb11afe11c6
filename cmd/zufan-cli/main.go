// Command zufan-cli is a terminal chat client for the Zufan legal
// assistant. It keeps conversations in a local state file, streams
// replies from the RAG backend, and, when configured with a token,
// synchronizes sessions with the session service.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"zufan/internal/chat"
	"zufan/internal/config"
	"zufan/internal/localstate"
	"zufan/internal/outbox"
	"zufan/internal/ragclient"
	"zufan/internal/sessionclient"
)

func main() {
	cfg, err := config.Load(os.Getenv("ZUFAN_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	local, err := localstate.NewBolt(cfg.Client.StateDir)
	if err != nil {
		log.Fatalf("open local state: %v", err)
	}

	var (
		store chat.Store
		box   *outbox.Outbox
	)
	if cfg.Client.AuthToken != "" && cfg.Client.UserID != "" {
		remote := sessionclient.New(cfg.Client.SessionServiceURL, cfg.Client.AuthToken)
		store = chat.NewUserStore(local, remote, chat.Authenticated{UserID: cfg.Client.UserID})
		box = outbox.New(remote)
	} else {
		store = chat.NewGuestStore(local)
	}

	ctx := context.Background()
	if err := store.Load(ctx); err != nil {
		log.Fatalf("load conversations: %v", err)
	}

	rag := ragclient.NewClient(cfg.Client.RAGBaseURL)
	stream := func(ctx context.Context, req chat.StreamRequest) (chat.Fragments, error) {
		return rag.ChatStream(ctx, ragclient.ChatPayload{
			Messages:  req.Messages,
			SessionID: req.SessionID,
			UserID:    req.UserID,
		})
	}

	var mirror chat.Mirror
	if box != nil {
		mirror = box
	}
	svc := chat.NewService(store, stream, mirror, cfg.Client.GuestMessageLimit)
	svc.OnFragment = func(convID, fragment string) {
		fmt.Print(fragment)
	}

	runREPL(ctx, store, svc)

	store.Wait()
	if box != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := box.Flush(flushCtx); err != nil {
			log.Printf("pending message sync abandoned: %v", err)
		}
		cancel()
		box.Close()
	}
}

func runREPL(ctx context.Context, store chat.Store, svc *chat.Service) {
	printActive(store)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/new":
			if _, err := store.CreateConversation(ctx); err != nil {
				fmt.Printf("create failed: %v\n", err)
				continue
			}
			printActive(store)
		case line == "/list":
			state := store.Snapshot()
			for _, conv := range state.Conversations {
				marker := "  "
				if conv.ID == state.ActiveID {
					marker = "* "
				}
				fmt.Printf("%s%s  %s\n", marker, conv.ID, conv.Title)
			}
		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := store.SwitchActive(ctx, id); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			printActive(store)
		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			if err := store.DeleteConversation(ctx, id); err != nil {
				fmt.Printf("delete failed: %v\n", err)
				continue
			}
			printActive(store)
		case strings.HasPrefix(line, "/"):
			fmt.Println("commands: /new /list /open <id> /delete <id> /quit")
		default:
			if err := svc.Send(ctx, line); err != nil {
				if errors.Is(err, chat.ErrGuestLimit) {
					fmt.Println("guest message limit reached; sign in to continue")
					continue
				}
				// the failure text is already in the conversation
				log.Printf("send: %v", err)
			}
			fmt.Println()
		}
	}
}

func printActive(store chat.Store) {
	conv, ok := store.Active()
	if !ok {
		return
	}
	fmt.Printf("-- %s --\n", conv.Title)
	for _, msg := range conv.Messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
	}
}
