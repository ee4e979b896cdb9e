package dbtest

import (
	"testing"

	"github.com/rjsadow/rfbgo/internal/db"
)

func TestNewTestDB_ReturnsWorkingDatabase(t *testing.T) {
	database := NewTestDB(t)
	if err := database.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestNewTestDB_IsolatedBetweenTests(t *testing.T) {
	db1 := NewTestDB(t)
	db2 := NewTestDB(t)

	if err := db1.CreateUser(&db.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatalf("db1 CreateUser: %v", err)
	}
	u, err := db2.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("db2 GetUserByUsername: %v", err)
	}
	if u != nil {
		t.Fatal("expected db2 to be an independent database from db1")
	}
}
