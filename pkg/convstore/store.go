package convstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/netassist/core/pkg/database"
	"github.com/netassist/core/pkg/models"
)

// Store is the ConversationStore repository set.
type Store struct {
	db *database.Client
	w  *writer
}

// New constructs a Store over an already-migrated database client and
// starts its single message-writer goroutine.
func New(db *database.Client) *Store {
	return &Store{db: db, w: newWriter()}
}

// Close stops the writer goroutine, draining any queued writes first.
func (s *Store) Close() { s.w.close() }

// CreateConversation starts a new conversation.
func (s *Store) CreateConversation(ctx context.Context) (models.Conversation, error) {
	now := time.Now()
	conv := models.Conversation{ID: uuid.NewString(), StartedAt: now, LastActivityAt: now, Metadata: map[string]any{}}
	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return models.Conversation{}, err
	}
	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO conversations (id, started_at, last_activity_at, metadata) VALUES ($1, $2, $3, $4)
	`, conv.ID, conv.StartedAt, conv.LastActivityAt, meta)
	if err != nil {
		return models.Conversation{}, wrapErr("create conversation", err)
	}
	return conv, nil
}

// AppendMessage writes a new message through the single-writer queue,
// assigning it the conversation's current time so timestamps remain
// non-decreasing within the conversation: the writer goroutine
// serializes every append for a given Store, so two concurrent callers can
// never interleave writes for the same conversation out of order.
func (s *Store) AppendMessage(ctx context.Context, msg models.ConversationMessage) (models.ConversationMessage, error) {
	var out models.ConversationMessage
	err := s.w.submit(ctx, func(ctx context.Context) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		last, err := s.lastMessageTimestamp(ctx, msg.ConversationID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		if !last.IsZero() && msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}

		blocks, err := json.Marshal(msg.Blocks)
		if err != nil {
			return err
		}
		metadata, err := json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}

		_, err = s.db.Pool.Exec(ctx, `
			INSERT INTO conversation_messages (id, conversation_id, role, text, timestamp, blocks, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, msg.ID, msg.ConversationID, msg.Role, msg.Text, msg.Timestamp, blocks, metadata)
		if err != nil {
			return err
		}
		_, err = s.db.Pool.Exec(ctx, `UPDATE conversations SET last_activity_at = $2 WHERE id = $1`, msg.ConversationID, msg.Timestamp)
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	if err != nil {
		return models.ConversationMessage{}, wrapErr("append message", err)
	}
	return out, nil
}

func (s *Store) lastMessageTimestamp(ctx context.Context, conversationID string) (time.Time, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT timestamp FROM conversation_messages
		WHERE conversation_id = $1 ORDER BY sequence DESC LIMIT 1
	`, conversationID)
	var ts time.Time
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, models.ErrNotFound
		}
		return time.Time{}, err
	}
	return ts, nil
}

// UpdateMessage rewrites an existing message's text, blocks, and metadata in
// place, leaving its timestamp and position untouched. Used for the
// loading-placeholder lifecycle: a placeholder is appended first, then
// finalized through a message_updated flow once the dispatch completes.
func (s *Store) UpdateMessage(ctx context.Context, msg models.ConversationMessage) error {
	err := s.w.submit(ctx, func(ctx context.Context) error {
		blocks, err := json.Marshal(msg.Blocks)
		if err != nil {
			return err
		}
		metadata, err := json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
		tag, err := s.db.Pool.Exec(ctx, `
			UPDATE conversation_messages SET text = $2, blocks = $3, metadata = $4 WHERE id = $1
		`, msg.ID, msg.Text, blocks, metadata)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return wrapErr("update message", err)
	}
	return nil
}

// Messages lists a conversation's messages in append order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]models.ConversationMessage, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, conversation_id, role, text, timestamp, blocks, metadata
		FROM conversation_messages WHERE conversation_id = $1 ORDER BY sequence
	`, conversationID)
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer rows.Close()

	var out []models.ConversationMessage
	for rows.Next() {
		var msg models.ConversationMessage
		var rawBlocks, rawMeta []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Text, &msg.Timestamp, &rawBlocks, &rawMeta); err != nil {
			return nil, wrapErr("scan message", err)
		}
		if err := json.Unmarshal(rawBlocks, &msg.Blocks); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawMeta, &msg.Metadata); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// CreateWatchRule persists a new WatchRule.
func (s *Store) CreateWatchRule(ctx context.Context, rule models.WatchRule) (models.WatchRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO watch_rules (id, conversation_id, target_id, target_type, originating_intent, created_at, expires_at, poll_interval_ms, change_threshold, active, last_polled, last_change)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rule.ID, rule.ConversationID, rule.TargetID, rule.TargetType, rule.OriginatingIntent,
		rule.CreatedAt, rule.ExpiresAt, rule.PollIntervalMS, rule.ChangeThreshold, rule.Active,
		rule.LastPolled, rule.LastChange)
	if err != nil {
		return models.WatchRule{}, wrapErr("create watch rule", err)
	}
	return rule, nil
}

// UpdateWatchRule persists a rule's mutable scheduler fields
// (LastPolled, LastChange, Active).
func (s *Store) UpdateWatchRule(ctx context.Context, rule models.WatchRule) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE watch_rules SET active = $2, last_polled = $3, last_change = $4 WHERE id = $1
	`, rule.ID, rule.Active, rule.LastPolled, rule.LastChange)
	if err != nil {
		return wrapErr("update watch rule", err)
	}
	return nil
}

// ExtendWatchRule pushes a rule's expiry forward. Issuing the same target
// query twice within the auto-watch window extends the existing rule rather
// than creating a second one.
func (s *Store) ExtendWatchRule(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE watch_rules SET expires_at = $2, active = TRUE WHERE id = $1
	`, id, expiresAt)
	if err != nil {
		return wrapErr("extend watch rule", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetWatchRule fetches a single rule by id, used by watch.stop/watch.logs
// lookups.
func (s *Store) GetWatchRule(ctx context.Context, id string) (models.WatchRule, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT id, conversation_id, target_id, target_type, originating_intent, created_at, expires_at, poll_interval_ms, change_threshold, active, last_polled, last_change
		FROM watch_rules WHERE id = $1
	`, id)
	var r models.WatchRule
	if err := row.Scan(&r.ID, &r.ConversationID, &r.TargetID, &r.TargetType, &r.OriginatingIntent,
		&r.CreatedAt, &r.ExpiresAt, &r.PollIntervalMS, &r.ChangeThreshold, &r.Active, &r.LastPolled, &r.LastChange); err != nil {
		return models.WatchRule{}, wrapErr("get watch rule", err)
	}
	return r, nil
}

// ActiveWatchRules lists every rule the scheduler should consider ready,
// i.e. active and not yet expired.
func (s *Store) ActiveWatchRules(ctx context.Context, now time.Time) ([]models.WatchRule, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, conversation_id, target_id, target_type, originating_intent, created_at, expires_at, poll_interval_ms, change_threshold, active, last_polled, last_change
		FROM watch_rules WHERE active AND expires_at > $1
	`, now)
	if err != nil {
		return nil, wrapErr("list active watch rules", err)
	}
	defer rows.Close()

	var out []models.WatchRule
	for rows.Next() {
		var r models.WatchRule
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.TargetID, &r.TargetType, &r.OriginatingIntent,
			&r.CreatedAt, &r.ExpiresAt, &r.PollIntervalMS, &r.ChangeThreshold, &r.Active, &r.LastPolled, &r.LastChange); err != nil {
			return nil, wrapErr("scan watch rule", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WatchRulesForTarget finds every active rule already watching a target,
// used by AutoWatchIntegrator to extend rather than duplicate a watch.
func (s *Store) WatchRulesForTarget(ctx context.Context, targetID string, targetType models.TargetType) ([]models.WatchRule, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, conversation_id, target_id, target_type, originating_intent, created_at, expires_at, poll_interval_ms, change_threshold, active, last_polled, last_change
		FROM watch_rules WHERE target_id = $1 AND target_type = $2 AND active
	`, targetID, targetType)
	if err != nil {
		return nil, wrapErr("watch rules for target", err)
	}
	defer rows.Close()

	var out []models.WatchRule
	for rows.Next() {
		var r models.WatchRule
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.TargetID, &r.TargetType, &r.OriginatingIntent,
			&r.CreatedAt, &r.ExpiresAt, &r.PollIntervalMS, &r.ChangeThreshold, &r.Active, &r.LastPolled, &r.LastChange); err != nil {
			return nil, wrapErr("scan watch rule", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func wrapErr(detail string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return models.NewExecutionError(models.ClassIntegrityViolation, detail, err)
}
