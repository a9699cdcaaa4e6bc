package database

import (
	"strings"
	"testing"
)

func TestConfigValidateRejectsMinExceedingMax(t *testing.T) {
	cfg := Config{MaxConns: 5, MinConns: 10}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when MinConns exceeds MaxConns")
	}
}

func TestConfigValidateRejectsZeroMaxConns(t *testing.T) {
	cfg := Config{MaxConns: 0, MinConns: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when MaxConns is zero")
	}
}

func TestConfigDSNIncludesAllFields(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	dsn := cfg.DSN()
	for _, want := range []string{"host=db", "port=5432", "user=u", "password=p", "dbname=d", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}
