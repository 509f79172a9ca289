package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneynotes/internal/amqp"
	"moneynotes/internal/cli"
	"moneynotes/internal/log"
	"moneynotes/internal/worker"
)

// statsInterval is how often the journal counters are logged.
const statsInterval = time.Minute

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting moneynotes-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required to consume ledger events")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	journal := worker.NewJournalWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumeLedgerEvents(gctx, journal.HandleLedgerEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logStats(logger, journal.Stats())
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logStats(logger, journal.Stats())
	logger.Info("Worker shutdown complete")
}

func logStats(logger *log.Logger, s worker.JournalStats) {
	logger.Info("Journal stats",
		"added", s.Added,
		"removed", s.Removed,
		"rejected", s.Rejected,
		"income", s.Income.String(),
		"expense", s.Expense.String(),
		"balance", s.Balance().String(),
		log.FieldRevision, s.Revision)
}
