package backend

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"moneynotes/internal/amqp"
	"moneynotes/internal/config"
	"moneynotes/internal/core"
	"moneynotes/internal/log"
	"moneynotes/internal/storage"
	"moneynotes/internal/store/memory"
)

func testFactory(buf *bytes.Buffer) *DefaultFactory {
	return NewFactory(log.New(log.Config{Level: slog.LevelDebug, Component: log.ComponentApp, Output: buf}))
}

func TestCreateMemoryBackend(t *testing.T) {
	var buf bytes.Buffer
	res, err := testFactory(&buf).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.Backend.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", res.Backend)
	}
	if res.Publisher != nil || res.Cleanup != nil {
		t.Fatalf("memory backend without AMQP needs no publisher or cleanup")
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	var buf bytes.Buffer
	name := "factory_" + uuid.NewString()
	res, err := testFactory(&buf).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDatabaseName: name})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if _, ok := res.Backend.(*storage.SQLiteRepository); !ok {
		t.Fatalf("expected sqlite repository, got %T", res.Backend)
	}
	tx, _ := core.NewTransaction(core.Expense, "Food", core.NewMoney(5))
	if _, err := res.Backend.Append(context.Background(), tx); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	var buf bytes.Buffer
	f := testFactory(&buf)
	for _, cfg := range []Config{{Type: "sheets"}, {Type: SQLiteBackend}} {
		if _, err := f.CreateBackend(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestUnreachableBrokerLeavesBackendUsable(t *testing.T) {
	var buf bytes.Buffer
	f := testFactory(&buf)
	f.dial = func(string, string, string) (*amqp.Client, error) {
		return nil, errors.New("dial AMQP: connection refused")
	}

	res, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, AMQPURL: "amqp://localhost:5672/"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if res.Publisher != nil {
		t.Fatalf("publisher must stay nil when the broker is unreachable")
	}
	if !bytes.Contains(buf.Bytes(), []byte("continuing without ledger events")) {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDatabaseName: "x", AMQPQueue: "q"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDatabaseName != "x" || cfg.AMQPQueue != "q" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
