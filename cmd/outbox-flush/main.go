// Command outbox-flush runs the outbox Flusher against a database-backed
// Persistor and TransactionManager, with handlers resolved by name.
//
// It is meant as a standalone worker process: it never schedules entries
// itself, only flushes and retries whatever business services have already
// scheduled from inside their own transactions.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/relaycore/outbox"
	"github.com/relaycore/outbox/sqlstore"
)

const exitUsage = 2

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any) {
	l.logger.Printf("INFO %s %s", msg, formatArgs(args))
}

func (l stdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("WARN %s %s", msg, formatArgs(args))
}

func (l stdLogger) Error(msg string, args ...any) {
	l.logger.Printf("ERROR %s %s", msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

func main() {
	var (
		driver       string
		dsn          string
		table        string
		workers      int
		batchSize    int
		pollInterval time.Duration
		cleanupEvery time.Duration
		migrate      bool
		verbose      bool
	)

	flag.StringVar(&driver, "driver", "mysql", "Database driver: mysql or postgres")
	flag.StringVar(&dsn, "dsn", "", "Database DSN")
	flag.StringVar(&table, "table", "outbox", "Outbox table name")
	flag.IntVar(&workers, "workers", 1, "Number of concurrent poll loops")
	flag.IntVar(&batchSize, "batch-size", 100, "Max entries fetched per poll")
	flag.DurationVar(&pollInterval, "poll-interval", 2*time.Second, "Idle sleep between polls")
	flag.DurationVar(&cleanupEvery, "cleanup-every", time.Hour, "How often to purge expired entries (0 disables)")
	flag.BoolVar(&migrate, "migrate", false, "Run schema migration before starting")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	cfg := runConfig{
		driver:       driver,
		dsn:          dsn,
		table:        table,
		workers:      workers,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		cleanupEvery: cleanupEvery,
		migrate:      migrate,
	}

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: verbose}
	if err := run(cfg, logger); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

type runConfig struct {
	driver       string
	dsn          string
	table        string
	workers      int
	batchSize    int
	pollInterval time.Duration
	cleanupEvery time.Duration
	migrate      bool
}

func run(cfg runConfig, logger stdLogger) error {
	dialect, sqlDriver, err := resolveDialect(cfg.driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(sqlDriver, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	persistor, err := sqlstore.New(db, sqlstore.WithTable(cfg.table), sqlstore.WithDialect(dialect))
	if err != nil {
		return fmt.Errorf("init persistor: %w", err)
	}

	if cfg.migrate {
		if err := persistor.Migrate(context.Background()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	tm := sqlstore.NewTxManager(db, nil, logger)

	// A worker process has no handlers registered at compile time: the
	// caller is expected to fork this command, or more commonly embed the
	// Flusher directly and register handlers via its own Instantiator. The
	// empty registry means every due entry fails with
	// ErrHandlerNotRegistered and is retried/blocklisted per RetryPolicy,
	// which is still a safe default for exercising cleanup in isolation.
	instantiator := outbox.NewMapInstantiator()

	ob, err := outbox.New(
		outbox.WithTransactionManager[*sql.Tx](tm),
		outbox.WithPersistor[*sql.Tx](persistor),
		outbox.WithInstantiator[*sql.Tx](instantiator),
		outbox.WithLogger[*sql.Tx](logger),
	)
	if err != nil {
		return fmt.Errorf("init outbox: %w", err)
	}

	flusher := outbox.NewFlusher(ob, outbox.FlusherConfig{
		Workers:         cfg.workers,
		BatchSize:       cfg.batchSize,
		PollInterval:    cfg.pollInterval,
		CleanupInterval: cfg.cleanupEvery,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return flusher.Run(ctx)
}

func resolveDialect(name string) (sqlstore.Dialect, string, error) {
	switch name {
	case "mysql", "mysql8":
		return sqlstore.MySQL8, "mysql", nil
	case "mysql5":
		return sqlstore.MySQL5, "mysql", nil
	case "postgres", "postgres9":
		return sqlstore.Postgres9, "pgx", nil
	default:
		return sqlstore.Dialect{}, "", fmt.Errorf("outbox-flush: unknown driver %q", name)
	}
}
