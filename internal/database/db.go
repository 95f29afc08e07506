// Package database owns the MySQL pool the trust subsystem runs on:
// counter transactions, the append-only scan trail and notification rows
// all share it.
package database

import (
	"context"
	"database/sql"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// dsnConfig assembles the driver configuration.  Token expiry and scan
// ordering compare timestamps across instances, so DATETIME columns are
// parsed into time.Time pinned to UTC here rather than trusting the
// session default of whichever server answers.
func dsnConfig(user, pass, host, port, name string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// Open connects to MySQL, sizes the pool and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsnConfig(user, pass, host, port, name).FormatDSN())
	if err != nil {
		return nil, err
	}

	// Sized for this service's mix: short issuance transactions and
	// bursts of verify traffic.  SSE connections never hold a pool
	// conn, so the cap stays modest.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
