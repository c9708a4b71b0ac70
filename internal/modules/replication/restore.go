package replication

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/ielts-tutor-backend/internal/data/localstore"
	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
)

// Restore loads the user's last snapshot from src and writes its vocabulary and notes back
// into the store. Account records are left alone so a restore never changes a password.
func Restore(ctx context.Context, store localstore.Store, src Source, userID string) (types.SnapshotPayload, error) {
	var out types.SnapshotPayload
	if userID == "" {
		return out, pkgerrors.Invalid("user id is required")
	}
	raw, err := src.Read(ctx, userID)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, pkgerrors.Invalid(fmt.Sprintf("snapshot for %s is not valid JSON: %v", userID, err))
	}
	if out.User.ID != "" && out.User.ID != userID {
		return out, pkgerrors.Invalid(fmt.Sprintf("snapshot belongs to %s, not %s", out.User.ID, userID))
	}
	if out.Vocab == nil {
		out.Vocab = []types.VocabItem{}
	}
	if out.LessonNotes == nil {
		out.LessonNotes = []types.LessonNote{}
	}

	if err := store.Set(ctx, localstore.VocabKey(userID), out.Vocab); err != nil {
		return out, fmt.Errorf("restore vocab: %w", err)
	}
	if err := store.Set(ctx, localstore.NotesKey(userID), out.GlobalNotes); err != nil {
		return out, fmt.Errorf("restore notes: %w", err)
	}
	if err := store.Set(ctx, localstore.LessonNotesKey(userID), out.LessonNotes); err != nil {
		return out, fmt.Errorf("restore lesson notes: %w", err)
	}
	return out, nil
}
