package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultLevel is the learning level of a fresh or reset store.
const DefaultLevel = 1

// CreatorProfile describes the user the assistant addresses.
type CreatorProfile struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Title       string `json:"title"` // honorific used to address the user
	SpeechStyle string `json:"speech_style"`
}

// ConversationRecord is one persisted exchange.
type ConversationRecord struct {
	Seq         int64     `json:"seq"`
	UID         string    `json:"uid"`
	UserMessage string    `json:"user_message"`
	Reply       string    `json:"reply"`
	Context     string    `json:"context"`
	CreatedAt   time.Time `json:"created_at"`
}

// LearningState tracks how far the assistant has "evolved".
type LearningState struct {
	UID       string    `json:"uid"`
	Level     int       `json:"level"`
	Areas     []string  `json:"areas"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaughtConcept is a trigger/response pair taught to the local engine.
type TaughtConcept struct {
	Seq       int64     `json:"seq"`
	UID       string    `json:"uid"`
	Trigger   string    `json:"trigger"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultCreator is the profile seeded on first initialization.
func DefaultCreator() CreatorProfile {
	return CreatorProfile{Name: "User", Title: "Master", SpeechStyle: "formal, direct"}
}

// DefaultAreas are the mastered areas of a fresh learning state.
func DefaultAreas() []string {
	return []string{"Logic Core", "Basic Math"}
}

// ─── Creator ─────────────────────────────────────────────────────────────────

// CreatorProfile returns the singleton profile.
func (s *Store) CreatorProfile(ctx context.Context) (CreatorProfile, error) {
	var p CreatorProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, name, title, speech_style FROM creator WHERE id = 1`,
	).Scan(&p.UID, &p.Name, &p.Title, &p.SpeechStyle)
	if errors.Is(err, sql.ErrNoRows) {
		return CreatorProfile{}, ErrNotFound
	}
	if err != nil {
		return CreatorProfile{}, unavailable("read creator", err)
	}
	return p, nil
}

// SetCreatorProfile replaces name, title and style, keeping the surface id.
func (s *Store) SetCreatorProfile(ctx context.Context, p CreatorProfile) error {
	if Normalize(p.Name) == "" || Normalize(p.Title) == "" {
		return ErrInvalidProfile
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO creator (id, uid, name, title, speech_style) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   title = excluded.title,
		   speech_style = excluded.speech_style`,
		newUID(), p.Name, p.Title, p.SpeechStyle,
	)
	if err != nil {
		return unavailable("write creator", err)
	}
	return nil
}

// ─── History ─────────────────────────────────────────────────────────────────

// AppendConversation stores an exchange. A zero CreatedAt is stamped with
// the store clock.
func (s *Store) AppendConversation(ctx context.Context, rec ConversationRecord) (ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UID = newUID()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (uid, user_message, reply, context, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.UID, rec.UserMessage, rec.Reply, rec.Context, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return ConversationRecord{}, unavailable("append history", err)
	}
	rec.Seq, _ = res.LastInsertId()
	return rec, nil
}

// RecentHistory returns up to limit of the newest records, oldest first.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		return []ConversationRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, uid, user_message, reply, context, created_at
		 FROM conversation_history
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("read history", err)
	}
	defer rows.Close()

	var out []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		var created int64
		if err := rows.Scan(&rec.Seq, &rec.UID, &rec.UserMessage, &rec.Reply, &rec.Context, &created); err != nil {
			return nil, unavailable("scan history", err)
		}
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read history", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []ConversationRecord{}
	}
	return out, nil
}

// ClearHistory deletes every conversation record and nothing else.
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_history`); err != nil {
		return unavailable("clear history", err)
	}
	return nil
}

// ─── Learning ────────────────────────────────────────────────────────────────

// LearningState returns the singleton learning state.
func (s *Store) LearningState(ctx context.Context) (LearningState, error) {
	return scanLearning(s.db.QueryRowContext(ctx,
		`SELECT uid, level, areas, updated_at FROM learning_state WHERE id = 1`))
}

// UpdateLearningState replaces level and areas. A level lower than the
// stored one is rejected.
func (s *Store) UpdateLearningState(ctx context.Context, level int, areas []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin learning update", err)
	}
	defer tx.Rollback()

	cur, err := scanLearning(tx.QueryRowContext(ctx,
		`SELECT uid, level, areas, updated_at FROM learning_state WHERE id = 1`))
	if err != nil {
		return err
	}
	if level < cur.Level {
		return fmt.Errorf("%w: %d < %d", ErrLevelRegression, level, cur.Level)
	}
	if err := s.writeLearning(ctx, tx, level, areas, s.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit learning update", err)
	}
	return nil
}

// AdvanceLearning adds delta to the level and appends areas in one
// transaction, so concurrent callers never lose an increment.
func (s *Store) AdvanceLearning(ctx context.Context, delta int, areas ...string) (LearningState, error) {
	if delta < 0 {
		return LearningState{}, fmt.Errorf("%w: negative delta %d", ErrLevelRegression, delta)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LearningState{}, unavailable("begin learning advance", err)
	}
	defer tx.Rollback()

	cur, err := scanLearning(tx.QueryRowContext(ctx,
		`SELECT uid, level, areas, updated_at FROM learning_state WHERE id = 1`))
	if err != nil {
		return LearningState{}, err
	}

	cur.Level += delta
	cur.Areas = append(cur.Areas, areas...)
	cur.UpdatedAt = fromMillis(s.now().UnixMilli())
	if err := s.writeLearning(ctx, tx, cur.Level, cur.Areas, cur.UpdatedAt); err != nil {
		return LearningState{}, err
	}
	if err := tx.Commit(); err != nil {
		return LearningState{}, unavailable("commit learning advance", err)
	}
	return cur, nil
}

// ResetLearningState restores level 1 and the default areas.
func (s *Store) ResetLearningState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	areas, err := encodeAreas(DefaultAreas())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO learning_state (id, uid, level, areas, updated_at) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   level = excluded.level,
		   areas = excluded.areas,
		   updated_at = excluded.updated_at`,
		newUID(), DefaultLevel, areas, s.now().UnixMilli(),
	)
	if err != nil {
		return unavailable("reset learning state", err)
	}
	return nil
}

func (s *Store) writeLearning(ctx context.Context, tx *sql.Tx, level int, areas []string, at time.Time) error {
	encoded, err := encodeAreas(areas)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE learning_state SET level = ?, areas = ?, updated_at = ? WHERE id = 1`,
		level, encoded, at.UnixMilli(),
	); err != nil {
		return unavailable("write learning state", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLearning(row rowScanner) (LearningState, error) {
	var st LearningState
	var areas string
	var updated int64
	err := row.Scan(&st.UID, &st.Level, &areas, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return LearningState{}, ErrNotFound
	}
	if err != nil {
		return LearningState{}, unavailable("read learning state", err)
	}
	if err := json.Unmarshal([]byte(areas), &st.Areas); err != nil {
		return LearningState{}, fmt.Errorf("store: decode areas: %w", err)
	}
	if st.Areas == nil {
		st.Areas = []string{}
	}
	st.UpdatedAt = fromMillis(updated)
	return st, nil
}

func encodeAreas(areas []string) (string, error) {
	if areas == nil {
		areas = []string{}
	}
	b, err := json.Marshal(areas)
	if err != nil {
		return "", fmt.Errorf("store: encode areas: %w", err)
	}
	return string(b), nil
}

// ─── Concepts ────────────────────────────────────────────────────────────────

// TeachConcept normalizes the trigger and appends the concept.
func (s *Store) TeachConcept(ctx context.Context, trigger, response string) (TaughtConcept, error) {
	c := TaughtConcept{
		UID:      newUID(),
		Trigger:  Normalize(trigger),
		Response: response,
	}
	if c.Trigger == "" || Normalize(c.Response) == "" {
		return TaughtConcept{}, ErrEmptyConcept
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO local_memory (uid, phrase, response, created_at) VALUES (?, ?, ?, ?)`,
		c.UID, c.Trigger, c.Response, c.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return TaughtConcept{}, unavailable("teach concept", err)
	}
	c.Seq, _ = res.LastInsertId()
	return c, nil
}

// FindConcept returns the response of the oldest concept whose trigger
// occurs inside the normalized query.
func (s *Store) FindConcept(ctx context.Context, query string) (string, bool, error) {
	q := Normalize(query)
	if q == "" {
		return "", false, nil
	}
	var response string
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM local_memory
		 WHERE phrase <> '' AND instr(?, phrase) > 0
		 ORDER BY seq
		 LIMIT 1`, q,
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("find concept", err)
	}
	return response, true, nil
}

// Concepts lists every taught concept in insertion order.
func (s *Store) Concepts(ctx context.Context) ([]TaughtConcept, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, uid, phrase, response, created_at FROM local_memory ORDER BY seq`)
	if err != nil {
		return nil, unavailable("list concepts", err)
	}
	defer rows.Close()

	out := []TaughtConcept{}
	for rows.Next() {
		var c TaughtConcept
		var created int64
		if err := rows.Scan(&c.Seq, &c.UID, &c.Trigger, &c.Response, &created); err != nil {
			return nil, unavailable("scan concept", err)
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list concepts", err)
	}
	return out, nil
}
