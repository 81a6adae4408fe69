// Command outbox-cleanup removes processed, expired rows from an outbox
// table.
//
// It wraps sqlstore.CleanupMaintainer for use in cron jobs when the
// application itself should not run DELETE statements.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
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
		driver     string
		dsn        string
		table      string
		checkEvery time.Duration
		limit      int
		once       bool
		verbose    bool
	)

	flag.StringVar(&driver, "driver", "mysql", "Database driver: mysql or postgres")
	flag.StringVar(&dsn, "dsn", "", "Database DSN")
	flag.StringVar(&table, "table", "outbox", "Outbox table name")
	flag.DurationVar(&checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flag.IntVar(&limit, "limit", 0, "Max rows deleted per run (0 uses default)")
	flag.BoolVar(&once, "once", false, "Run once and exit")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(driver, dsn, table, checkEvery, limit, once, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(driver, dsn, table string, checkEvery time.Duration, limit int, once, verbose bool) error {
	dialect, sqlDriver, err := resolveDialect(driver)
	if err != nil {
		return err
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: verbose}

	persistor, err := sqlstore.New(db, sqlstore.WithTable(table), sqlstore.WithDialect(dialect))
	if err != nil {
		return fmt.Errorf("init persistor: %w", err)
	}

	maintainer := sqlstore.NewCleanupMaintainer(db, persistor, sqlstore.CleanupConfig{
		CheckEvery: checkEvery,
		Limit:      limit,
		Clock:      outbox.SystemClock{},
		Logger:     logger,
	})

	ctx := context.Background()
	if once {
		deleted, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		if deleted > 0 {
			logger.Info("cleanup done", "deleted", deleted)
		}

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
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
		return sqlstore.Dialect{}, "", fmt.Errorf("outbox-cleanup: unknown driver %q", name)
	}
}
