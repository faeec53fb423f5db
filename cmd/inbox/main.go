// inbox - command line client for the marketplace inbox
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shootingwala/inbox/clients/go/inbox"
	"github.com/shootingwala/inbox/internal/config"
	"github.com/shootingwala/inbox/internal/engine"
	"github.com/shootingwala/inbox/internal/models"
	"github.com/shootingwala/inbox/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
	exitOnError(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "use":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: inbox use <id> <name> <type>")
			os.Exit(1)
		}
		actorType, err := inbox.ParseActorType(os.Args[4])
		exitOnError(err)
		err = db.SaveIdentity(ctx, &models.Identity{
			Profile:   store.DefaultProfile,
			ActorID:   os.Args[2],
			ActorName: os.Args[3],
			ActorType: string(actorType),
		})
		exitOnError(err)
		fmt.Printf("Now acting as %s (%s)\n", os.Args[2], actorType)
		return

	case "help", "--help", "-h":
		usage()
		return
	}

	actor := currentActor(ctx, cfg, db)
	client := newClient(cfg, actor)

	switch cmd {
	case "whoami":
		printJSON(actor)

	case "token":
		if cfg.TokenSecret == "" {
			exitOnError(fmt.Errorf("API_TOKEN_SECRET is not set"))
		}
		token, err := inbox.NewTokenSigner(cfg.TokenSecret, "inbox-cli", 24*time.Hour).Sign(actor)
		exitOnError(err)
		fmt.Println(token)

	case "conversations":
		convs, err := client.ListConversations(ctx, actor)
		exitOnError(err)
		if len(convs) == 0 {
			fmt.Println("No conversations")
		}
		for _, c := range convs {
			other, _ := c.Counterpart(actor.ID)
			unread := ""
			if c.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", c.UnreadCount)
			}
			fmt.Printf("  %s  %s%s  %s\n", c.ID, other.Name, unread, truncate(c.LastMessage, 60))
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: inbox read <conversation>")
			os.Exit(1)
		}
		msgs, err := client.ListMessages(ctx, os.Args[2])
		exitOnError(err)
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.SenderName, m.Body)
		}

	case "send":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: inbox send <message> [conversation]")
			os.Exit(1)
		}
		opts := engine.SendOptions{}
		if len(os.Args) > 3 {
			opts.ConversationID = os.Args[3]
		}
		eng := newEngine(cfg, client, actor, db, logger)
		// Load the list so the recipient can be resolved from the conversation.
		if opts.ConversationID != "" {
			eng.RefreshConversations(ctx)
		}
		msg, err := eng.SendMessage(ctx, os.Args[2], opts)
		exitOnError(err)
		if msg != nil {
			fmt.Printf("Sent: %s (conversation %s)\n", msg.ID, msg.ConversationID)
		} else {
			fmt.Println("Sent")
		}

	case "mark-read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: inbox mark-read <conversation>")
			os.Exit(1)
		}
		exitOnError(client.MarkRead(ctx, os.Args[2], actor.ID))
		fmt.Println("Marked as read")

	case "watch":
		conversationID := ""
		if len(os.Args) > 2 {
			conversationID = os.Args[2]
		}
		exitOnError(watch(ctx, newEngine(cfg, client, actor, db, logger), conversationID, os.Stdout))

	case "tail":
		if cfg.RedisURL == "" {
			exitOnError(fmt.Errorf("REDIS_URL is not set"))
		}
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
		exitOnError(err)
		defer rs.Close()
		if snap, err := rs.LoadSnapshot(ctx, actor.ID); err == nil && snap != nil {
			fmt.Printf("%d conversations, last synced %s\n", len(snap.Conversations), snap.LastSyncedAt.Local().Format(time.Kitchen))
		}
		err = rs.SubscribeEvents(ctx, actor.ID, func(ev engine.Event) {
			fmt.Printf("[%s] %s %s\n", ev.At.Local().Format("15:04:05"), ev.Type, ev.ConversationID)
		})
		exitOnError(err)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// currentActor returns the actor from the environment, falling back to the
// identity saved with `inbox use`.
func currentActor(ctx context.Context, cfg *config.Config, db store.DataStore) inbox.Actor {
	if cfg.Actor.ID != "" {
		return cfg.Actor
	}
	identity, err := db.GetIdentity(ctx, store.DefaultProfile)
	exitOnError(err)
	if identity == nil {
		fmt.Fprintln(os.Stderr, "No identity: set ACTOR_ID or run `inbox use <id> <name> <type>`")
		os.Exit(1)
	}
	return inbox.Actor{ID: identity.ActorID, Name: identity.ActorName, Type: inbox.ActorType(identity.ActorType)}
}

func newClient(cfg *config.Config, actor inbox.Actor) *inbox.Client {
	client := inbox.NewClient(cfg.APIURL)
	client.HTTPClient.Timeout = cfg.HTTPTimeout
	if cfg.TokenSecret != "" {
		client.Signer = inbox.NewTokenSigner(cfg.TokenSecret, "inbox-cli", time.Hour)
		client.Actor = actor
	}
	return client
}

func newEngine(cfg *config.Config, client *inbox.Client, actor inbox.Actor, db store.DataStore, logger zerolog.Logger) *engine.Engine {
	return engine.New(client, actor, &engine.Options{
		Admin:                    cfg.Admin,
		ConversationPollInterval: cfg.ConversationPollInterval,
		MessagePollInterval:      cfg.MessagePollInterval,
		Logger:                   &logger,
		Drafts:                   db,
	})
}

// watch prints engine events to out until ctx is done. The handler is
// registered before anything is selected so no event is missed.
func watch(ctx context.Context, eng *engine.Engine, conversationID string, out io.Writer) error {
	var mu sync.Mutex
	off := eng.On(func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(out, eng, ev)
	})
	defer off()

	if conversationID != "" {
		eng.SelectConversation(ctx, conversationID)
	}
	if err := eng.Attach(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	eng.Detach()
	return nil
}

func printEvent(out io.Writer, eng *engine.Engine, ev engine.Event) {
	snap := eng.Snapshot()
	switch ev.Type {
	case engine.EventConversationsChanged:
		unread := 0
		for _, c := range snap.Conversations {
			unread += c.UnreadCount
		}
		fmt.Fprintf(out, "* %d conversations, %d unread\n", len(snap.Conversations), unread)
	case engine.EventMessagesChanged:
		if n := len(snap.Messages); n > 0 && snap.MessagesConversationID == ev.ConversationID {
			last := snap.Messages[n-1]
			fmt.Fprintf(out, "[%s] %s: %s\n", last.CreatedAt.Local().Format("15:04"), last.SenderName, last.Body)
		}
	case engine.EventSendFailed:
		fmt.Fprintf(out, "! send failed: %s\n", ev.Error)
	default:
		fmt.Fprintf(out, "- %s %s\n", ev.Type, ev.ConversationID)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func usage() {
	fmt.Println(`inbox - marketplace inbox client

Usage: inbox <command> [options]

Commands:
  conversations            List conversations for the current actor
  read <conversation>      Print a conversation's messages
  send <message> [conv]    Send a message (starts a new thread when conv is omitted)
  mark-read <conversation> Mark a conversation as read
  use <id> <name> <type>   Save the local identity
  whoami                   Show the current identity
  token                    Print a bearer token for the current actor
  watch [conversation]     Sync and print changes until interrupted
  tail                     Follow events published by inboxd

Environment:
  INBOX_API_URL     Messaging API URL (default: http://localhost:3000)
  ACTOR_ID          Acting identity (overrides "inbox use")
  API_TOKEN_SECRET  Signs bearer tokens when set
  REDIS_URL         Required by tail
  SQLITE_PATH       Local store (default: ./data/inbox.db)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
