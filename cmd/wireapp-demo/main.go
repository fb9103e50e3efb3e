// Command wireapp-demo is a minimal launcher demonstrating how a host
// application wires up the SDK: load configuration, bootstrap the
// crypto engine, register handlers, and run the event pipeline until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wireapp/wire-apps-go-sdk"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/cryptoengine/fakeengine"
	"github.com/wireapp/wire-apps-go-sdk/internal/handler"
	"github.com/wireapp/wire-apps-go-sdk/internal/logging"
	"github.com/wireapp/wire-apps-go-sdk/internal/model"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("wireapp-demo: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("wireapp-demo", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file (env WIRE_SDK_* always applies)")
	storagePath := fs.String("storage", "wireapp-demo.db", "SQLite database path")
	showVersion := fs.Bool("version", false, "print version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sdk.New(ctx, *configPath, sdk.Options{
		StoragePath: *storagePath,
		// newFakeEngine is a development stand-in: this module treats
		// CryptoEngine as an external collaborator (spec §9) and ships
		// no concrete MLS implementation. A real deployment supplies
		// an EngineFactory backed by an actual MLS library here.
		NewEngine: newFakeEngine,
	})
	if err != nil {
		return fmt.Errorf("start sdk: %w", err)
	}
	defer app.Close()

	logging.PrintBanner(version, "")
	registerHandlers(app.Handlers())

	app.Run(ctx)
	return nil
}

func newFakeEngine(keystorePath string) (cryptoengine.Engine, error) {
	slog.Warn("wireapp-demo: using an in-memory fake crypto engine, not suitable for production", "keystore_path", keystorePath)
	return fakeengine.New(), nil
}

func registerHandlers(h *handler.Registry) {
	h.OnMessage(handler.BlockingOrAsync[handler.MessageEvent]{
		Blocking: func(ctx context.Context, e handler.MessageEvent) error {
			switch msg := e.Message.(type) {
			case model.Text:
				slog.Info("message received", "conversation_id", e.ConversationId, "sender", e.Sender, "text", msg.Content)
			default:
				slog.Info("message received", "conversation_id", e.ConversationId, "sender", e.Sender, "kind", fmt.Sprintf("%T", msg))
			}
			return nil
		},
	})

	h.OnUserJoinedConversation(handler.BlockingOrAsync[handler.MembersChangedEvent]{
		Blocking: func(ctx context.Context, e handler.MembersChangedEvent) error {
			slog.Info("members joined", "conversation_id", e.ConversationId, "user_ids", e.UserIds)
			return nil
		},
	})

	h.OnUserLeftConversation(handler.BlockingOrAsync[handler.MembersChangedEvent]{
		Blocking: func(ctx context.Context, e handler.MembersChangedEvent) error {
			slog.Info("members left", "conversation_id", e.ConversationId, "user_ids", e.UserIds)
			return nil
		},
	})

	h.OnConversationDeleted(handler.BlockingOrAsync[handler.ConversationDeletedEvent]{
		Blocking: func(ctx context.Context, e handler.ConversationDeletedEvent) error {
			slog.Info("conversation deleted", "conversation_id", e.ConversationId)
			return nil
		},
	})

	h.OnAppAddedToConversation(handler.BlockingOrAsync[handler.ConversationJoinedEvent]{
		Blocking: func(ctx context.Context, e handler.ConversationJoinedEvent) error {
			slog.Info("app added to conversation", "conversation_id", e.ConversationId)
			return nil
		},
	})
}
