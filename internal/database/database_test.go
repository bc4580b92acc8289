package database

import (
	"context"
	"errors"
	"testing"
)

func TestDSN(t *testing.T) {
	c := NewConfig()
	c.Password = "secret"
	want := "root:secret@tcp(localhost:3306)/smppgw?parseTime=true&charset=utf8mb4&loc=Local"
	if got := c.DSN(); got != want {
		t.Fatalf("DSN = %q", got)
	}

	c.Parameters = ""
	if got := c.DSN(); got != "root:secret@tcp(localhost:3306)/smppgw" {
		t.Fatalf("DSN without parameters = %q", got)
	}
	if got := c.String(); got != "root@localhost:3306/smppgw" {
		t.Fatalf("String = %q", got)
	}
}

func TestMigrationsOrdered(t *testing.T) {
	if Migrations[0].ID != 1 {
		t.Fatal("first migration must create the initial tables")
	}
	for i := 1; i < len(Migrations); i++ {
		if Migrations[i].ID <= Migrations[i-1].ID {
			t.Fatalf("migration %d out of order", Migrations[i].ID)
		}
		if Migrations[i].SQL == "" {
			t.Fatalf("migration %d has no SQL", Migrations[i].ID)
		}
	}
}

func TestManagerNotConnected(t *testing.T) {
	m := NewManager(nil)
	if m.DB() != nil {
		t.Fatal("DB before Connect should be nil")
	}
	if err := m.Ping(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Ping = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}
