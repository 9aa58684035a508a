package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-escrow/events"
	"tournament-escrow/models"
	"tournament-escrow/registry"
)

// EventStore persists the lifecycle event stream and the tournament read
// model in Postgres.
type EventStore struct {
	DB *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{DB: db}
}

// ToRecord encodes ev for storage.
func ToRecord(ev events.Event) (models.EventRecord, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return models.EventRecord{}, fmt.Errorf("encode event %d payload: %w", ev.Seq, err)
	}
	return models.EventRecord{
		Seq:          ev.Seq,
		EventID:      ev.ID,
		Type:         string(ev.Type),
		TournamentID: ev.TournamentID,
		OccurredAt:   ev.OccurredAt,
		Payload:      string(payload),
	}, nil
}

// FromRecord decodes a stored event back into its typed form.
func FromRecord(r models.EventRecord) (events.Event, error) {
	payload, err := events.DecodePayload(events.Type(r.Type), []byte(r.Payload))
	if err != nil {
		return events.Event{}, err
	}
	return events.Event{
		Seq:          r.Seq,
		ID:           r.EventID,
		Type:         events.Type(r.Type),
		TournamentID: r.TournamentID,
		OccurredAt:   r.OccurredAt,
		Payload:      payload,
	}, nil
}

// Save appends evs. Events already stored under the same Seq are skipped, so
// a batch may be retried after a partial failure.
func (s *EventStore) Save(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	records := make([]models.EventRecord, 0, len(evs))
	for _, ev := range evs {
		r, err := ToRecord(ev)
		if err != nil {
			return err
		}
		records = append(records, r)
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seq"}}, DoNothing: true}).
		Create(&records).Error
}

// LastSeq is the highest stored sequence number, 0 for an empty log.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.DB.WithContext(ctx).
		Model(&models.EventRecord{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	return seq, err
}

// LastTournamentID is the highest tournament id found in either the event
// log or the read model. Events are persisted ahead of the read model, so a
// tournament may exist in one and not yet the other.
func (s *EventStore) LastTournamentID(ctx context.Context) (uint64, error) {
	var id uint64
	err := s.DB.WithContext(ctx).
		Raw(`SELECT GREATEST(
			(SELECT COALESCE(MAX(tournament_id), 0) FROM event_records),
			(SELECT COALESCE(MAX(id), 0) FROM tournaments))`).
		Scan(&id).Error
	return id, err
}

// Since returns up to limit stored events after seq, oldest first.
func (s *EventStore) Since(ctx context.Context, seq uint64, limit int) ([]events.Event, error) {
	var records []models.EventRecord
	q := s.DB.WithContext(ctx).Where("seq > ?", seq).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(records))
	for _, r := range records {
		ev, err := FromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// TournamentHistory rebuilds tournament id from its stored events.
func (s *EventStore) TournamentHistory(ctx context.Context, id uint64) (*events.History, error) {
	var records []models.EventRecord
	if err := s.DB.WithContext(ctx).Where("tournament_id = ?", id).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	evs := make([]events.Event, 0, len(records))
	for _, r := range records {
		ev, err := FromRecord(r)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return events.Replay(evs)[id], nil
}

// SnapshotToModel converts an engine snapshot into read-model rows.
func SnapshotToModel(snap registry.Snapshot) models.Tournament {
	t := models.Tournament{
		ID:             snap.ID,
		EntryFee:       snap.EntryFee,
		MaxPlayers:     snap.MaxPlayers,
		CurrentPlayers: snap.CurrentPlayers,
		StartTime:      snap.StartTime,
		LobbyDeadline:  snap.LobbyDeadline,
		GameType:       snap.GameType,
		Status:         snap.StateName,
		IsActive:       snap.IsActive,
		IsCancelled:    snap.IsCancelled,
		Pot:            snap.Pot,
		CreatedAt:      snap.CreatedAt,
	}
	if !snap.ClosedAt.IsZero() {
		closed := snap.ClosedAt
		t.ClosedAt = &closed
	}
	for i, p := range snap.Players {
		score, scored := snap.Scores[p]
		e := models.TournamentEntry{
			TournamentID: snap.ID,
			Player:       p.String(),
			JoinOrder:    i + 1,
			Score:        score,
			Scored:       scored,
		}
		for rank, w := range snap.Winners {
			if w == p {
				e.FinalRank = rank + 1
				e.Reward = snap.Rewards[rank]
			}
		}
		t.Entries = append(t.Entries, e)
	}
	return t
}

// SaveSnapshot upserts the read model of one tournament.
func (s *EventStore) SaveSnapshot(ctx context.Context, snap registry.Snapshot, archiveKey string) error {
	t := SnapshotToModel(snap)
	t.ArchiveKey = archiveKey
	entries := t.Entries
	t.Entries = nil

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cols := []string{"current_players", "status", "is_active", "is_cancelled", "pot", "closed_at", "updated_at"}
		if archiveKey != "" {
			cols = append(cols, "archive_key")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(cols),
		}).Create(&t).Error; err != nil {
			return fmt.Errorf("upsert tournament %d: %w", t.ID, err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tournament_id"}, {Name: "player"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "scored", "final_rank", "reward"}),
		}).Create(&entries).Error; err != nil {
			return fmt.Errorf("upsert entries of tournament %d: %w", t.ID, err)
		}
		return nil
	})
}

// Tournament loads a tournament and its entries from the read model.
func (s *EventStore) Tournament(ctx context.Context, id uint64) (models.Tournament, error) {
	var t models.Tournament
	err := s.DB.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("join_order ASC") }).
		First(&t, "id = ?", id).Error
	return t, err
}
