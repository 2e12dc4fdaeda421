// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the process-wide connection pool, created by ConnectDB.
var DB *pgxpool.Pool

// ConnectDB initializes the pool from DATABASE_URL and verifies the
// connection. Exits on failure; the historian is useless without its sink.
func ConnectDB() {
	url := os.Getenv("DATABASE_URL")
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to create connection pool: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "unable to reach database: %v\n", err)
		os.Exit(1)
	}
	DB = pool
}
