package interactions

import "time"

// ResolveCurrentState projects a record onto its current state. It returns nil
// for a nil record or one with empty history; a persisted record always seeds
// at least one entry, so the empty case is defensive.
func ResolveCurrentState(record *Record) *CurrentState {
	if record == nil || len(record.History) == 0 {
		return nil
	}
	last := record.History[len(record.History)-1]
	return &CurrentState{
		RecordID:    record.RecordID,
		UserID:      record.UserID,
		PropertyID:  record.PropertyID,
		ColumnIndex: last.ColumnIndex,
		Position:    last.Position,
		Status:      last.Status,
		Comment:     last.Comment,
		CreatedAt:   last.CreatedAt,
	}
}

type upsertDecision struct {
	action Action
	entry  *HistoryEntry
}

// decideUpsert is the pure create/append/no-op decision. A missing record
// seeds history with the desired state; an existing record only grows when the
// desired state differs from its last entry across all compared fields, which
// collapses repeated identical client submissions into a single entry.
func decideUpsert(existing *Record, desired DesiredState, appliedAt time.Time) upsertDecision {
	if existing == nil || len(existing.History) == 0 {
		return upsertDecision{
			action: ActionCreated,
			entry: &HistoryEntry{
				Seq:         1,
				ColumnIndex: desired.ColumnIndex,
				Position:    desired.Position,
				Status:      desired.Status,
				Comment:     desired.Comment,
				CreatedAt:   appliedAt,
			},
		}
	}

	last := existing.History[len(existing.History)-1]
	unchanged := last.ColumnIndex == desired.ColumnIndex &&
		last.Position == desired.Position &&
		last.Status == desired.Status &&
		last.Comment == desired.Comment
	if unchanged {
		return upsertDecision{action: ActionNoOp}
	}

	return upsertDecision{
		action: ActionAppended,
		entry: &HistoryEntry{
			RecordID:    existing.RecordID,
			Seq:         last.Seq + 1,
			ColumnIndex: desired.ColumnIndex,
			Position:    desired.Position,
			Status:      desired.Status,
			Comment:     desired.Comment,
			CreatedAt:   appliedAt,
		},
	}
}
