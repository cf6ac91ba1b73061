// Command outboxctl inspects and repairs the payment outbox.
//
//	outboxctl migrate
//	outboxctl pending [-limit 50]
//	outboxctl quarantined [-limit 50]
//	outboxctl requeue <message-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/bootstrap"
	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payment-gateway/pkg/config"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/outbox"
	"github.com/google/uuid"
)

const usage = "usage: outboxctl migrate | pending [-limit n] | quarantined [-limit n] | requeue <message-id>"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cfg, err := config.Load("outboxctl")
	if err != nil {
		return err
	}
	if cfg.Store.Driver != "postgres" {
		return errors.New("outboxctl only operates on the postgres store")
	}
	cfg.Store.AutoMigrate = false
	log := logging.New(cfg.Service, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	stores, err := bootstrap.OpenStores(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		if err := postgres.Migrate(ctx, stores.Pool); err != nil {
			return err
		}
		fmt.Fprintln(out, "schema up to date")
		return nil
	case "pending", "quarantined":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		limit := fs.Int("limit", 50, "maximum messages to list")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		list := stores.Admin.Pending
		if cmd == "quarantined" {
			list = stores.Admin.Quarantined
		}
		msgs, err := list(ctx, *limit)
		if err != nil {
			return err
		}
		return printMessages(out, msgs)
	case "requeue":
		if len(rest) != 1 {
			return errors.New(usage)
		}
		return requeue(ctx, stores.Admin, rest[0], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func requeue(ctx context.Context, admin outbox.Admin, raw string, out io.Writer) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}
	ok, err := admin.Requeue(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("message %s is not quarantined", id)
	}
	fmt.Fprintf(out, "requeued %s\n", id)
	return nil
}

type messageView struct {
	ID            uuid.UUID  `json:"id"`
	AggregateID   uuid.UUID  `json:"aggregateId"`
	Type          string     `json:"type"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	QuarantinedAt *time.Time `json:"quarantinedAt,omitempty"`
}

// printMessages writes one JSON object per line.
func printMessages(out io.Writer, msgs []outbox.Message) error {
	enc := json.NewEncoder(out)
	for _, m := range msgs {
		if err := enc.Encode(messageView{
			ID:            m.ID,
			AggregateID:   m.AggregateID,
			Type:          m.Type,
			Attempts:      m.Attempts,
			LastError:     m.LastError,
			CreatedAt:     m.CreatedAt,
			QuarantinedAt: m.QuarantinedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}
