package repository

import (
	"context"
	"errors"
	"testing"
)

func TestTelegramLinking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(db)
	alice := newTestUser(t, db, "alice@example.com")
	bob := newTestUser(t, db, "bob@example.com")

	if err := repo.LinkTelegram(ctx, alice.ID, 100); err != nil {
		t.Fatalf("Failed to link chat: %v", err)
	}
	// The same chat moves to bob.
	if err := repo.LinkTelegram(ctx, bob.ID, 100); err != nil {
		t.Fatalf("Failed to relink chat: %v", err)
	}

	linked, err := repo.ListTelegramLinked(ctx)
	if err != nil {
		t.Fatalf("Failed to list linked users: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != bob.ID || *linked[0].TelegramChatID != 100 {
		t.Fatalf("Expected only bob linked to chat 100, got %+v", linked)
	}

	user, err := repo.UnlinkTelegram(ctx, 100)
	if err != nil {
		t.Fatalf("Failed to unlink chat: %v", err)
	}
	if user.ID != bob.ID || user.TelegramChatID != nil {
		t.Errorf("Expected bob returned without chat, got %+v", user)
	}

	if _, err := repo.UnlinkTelegram(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unlinked chat, got %v", err)
	}
	if err := repo.LinkTelegram(ctx, "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing user, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := NewUserRepository(db).Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
