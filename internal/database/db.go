package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Params are the connection settings.  LockWaitSeconds bounds how long a
// booking transaction waits on a contended slot row before MySQL reports
// error 1205.
type Params struct {
	User, Pass, Host, Port, Name string
	LockWaitSeconds              int
}

// DSN renders p as a go-sql-driver DSN.
func (p Params) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Pass
	cfg.Net = "tcp"
	cfg.Addr = p.Host + ":" + p.Port
	cfg.DBName = p.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	wait := p.LockWaitSeconds
	if wait <= 0 {
		wait = 5
	}
	cfg.Params = map[string]string{
		"charset":                  "utf8mb4",
		"innodb_lock_wait_timeout": fmt.Sprint(wait),
		"transaction_isolation":    "'READ-COMMITTED'",
	}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
