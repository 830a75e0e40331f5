// Package main applies the embedded database migrations to PostgreSQL
// and ClickHouse. Safe to run repeatedly: every statement is idempotent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"news-trader/internal/storage/migrations"
	pgstore "news-trader/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	timeout := flag.Duration("timeout", 2*time.Minute, "Migration deadline")
	flag.Parse()

	if *postgresDSN == "" && *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "at least one of --postgres-dsn or --clickhouse-dsn is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fatal(fmt.Errorf("connect to postgres: %w", err))
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			fatal(fmt.Errorf("postgres migrations: %w", err))
		}
		pool.Close()
		fmt.Println("postgres migrations applied")
	}

	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			fatal(fmt.Errorf("clickhouse migrations: %w", err))
		}
		conn.Close()
		fmt.Println("clickhouse migrations applied")
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
