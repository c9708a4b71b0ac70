package kv

import (
	"context"
	"testing"

	"github.com/yungbote/ielts-tutor-backend/internal/data/repos/testutil"
)

func TestKVRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewKVRepo(db, testutil.Logger(t))
	ctx := context.Background()

	missing, err := repo.Get(ctx, tx, "ielts_vocab_linh")
	if err != nil {
		t.Fatalf("Get (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("Get (missing): expected nil entry")
	}

	if err := repo.Upsert(ctx, tx, "ielts_vocab_linh", []byte(`[]`)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, tx, "ielts_vocab_linh", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Upsert (overwrite): %v", err)
	}
	if err := repo.Upsert(ctx, tx, "ielts_vocab_an_nguyen", []byte(`[]`)); err != nil {
		t.Fatalf("Upsert (second key): %v", err)
	}
	if err := repo.Upsert(ctx, tx, "ielts_notes_linh", []byte(`{}`)); err != nil {
		t.Fatalf("Upsert (third key): %v", err)
	}

	got, err := repo.Get(ctx, tx, "ielts_vocab_linh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || string(got.Value) != `[{"id":"a"}]` {
		t.Fatalf("Get: unexpected entry: %+v", got)
	}

	keys, err := repo.KeysWithPrefix(ctx, tx, "ielts_vocab_")
	if err != nil {
		t.Fatalf("KeysWithPrefix: %v", err)
	}
	if len(keys) != 2 || keys[0] != "ielts_vocab_an_nguyen" || keys[1] != "ielts_vocab_linh" {
		t.Fatalf("KeysWithPrefix: unexpected keys: %v", keys)
	}

	if err := repo.Delete(ctx, tx, "ielts_vocab_linh"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = repo.Get(ctx, tx, "ielts_vocab_linh")
	if err != nil {
		t.Fatalf("Get (deleted): %v", err)
	}
	if got != nil {
		t.Fatalf("Get (deleted): expected nil entry")
	}
}
