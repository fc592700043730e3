// Package postgres is the PostgreSQL storage adapter. Rows map onto the
// tables created by the embedded migrations and the remote procedures call
// the SQL functions of the same names. Every committed write that a
// realtime feed carries is handed to a backend.ChangePublisher.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

// Store implements backend.Store on PostgreSQL.
type Store struct {
	db  *sql.DB
	pub backend.ChangePublisher
}

var _ backend.Store = (*Store)(nil)

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// NewStore creates a store backed by db. pub may be nil when nothing
// listens for changes.
func NewStore(db *sql.DB, pub backend.ChangePublisher) *Store {
	return &Store{db: db, pub: pub}
}

// nullable maps "" to SQL NULL for optional UUID columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) publishSession(kind domain.ChangeKind, newRow, old *domain.Session) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishSessionChange(domain.SessionChange{Kind: kind, New: newRow, Old: old}); err != nil {
		log.Printf("[postgres] publish session change %s: %v", newRow.ID, err)
	}
}

// ---------------------------------------------------------------------------
// Procedures
// ---------------------------------------------------------------------------

func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT get_server_time()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("postgres: server time: %w", err)
	}
	return now, nil
}

func (s *Store) ClaimSession(ctx context.Context, sessionID, listenerID string) (bool, error) {
	old, err := s.Session(ctx, sessionID)
	if errors.Is(err, backend.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var won bool
	if err := s.db.QueryRowContext(ctx, `SELECT claim_session($1, $2)`, sessionID, listenerID).Scan(&won); err != nil {
		return false, fmt.Errorf("postgres: claim session %s: %w", sessionID, err)
	}
	if !won {
		return false, nil
	}

	if row, err := s.Session(ctx, sessionID); err == nil {
		s.publishSession(domain.ChangeUpdate, row, old)
	}
	return true, nil
}

func (s *Store) ExtendSession(ctx context.Context, sessionID string, minutes int) error {
	if _, err := s.db.ExecContext(ctx, `SELECT extend_session($1, $2)`, sessionID, minutes); err != nil {
		return fmt.Errorf("postgres: extend session %s: %w", sessionID, err)
	}
	if row, err := s.Session(ctx, sessionID); err == nil {
		s.publishSession(domain.ChangeUpdate, row, nil)
	}
	return nil
}

func (s *Store) SubmitRating(ctx context.Context, sessionID string, rating int, comment string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT submit_rating($1, $2, $3)`, sessionID, rating, comment); err != nil {
		return fmt.Errorf("postgres: submit rating %s: %w", sessionID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rows: sessions
// ---------------------------------------------------------------------------

const sessionColumns = `id, seeker_id, listener_id, topic_id, description, created_at,
	duration_minutes, extended_duration_minutes, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*domain.Session, error) {
	var (
		sess     domain.Session
		listener sql.NullString
		topic    sql.NullString
	)
	err := r.Scan(&sess.ID, &sess.SeekerID, &listener, &topic, &sess.Description, &sess.CreatedAt,
		&sess.DurationMinutes, &sess.ExtendedDurationMinutes, &sess.Status)
	if err != nil {
		return nil, err
	}
	sess.ListenerID = listener.String
	sess.TopicID = topic.String
	return &sess, nil
}

func (s *Store) Session(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: session %s: %w", id, err)
	}
	return sess, nil
}

func (s *Store) InsertSession(ctx context.Context, sess *domain.Session) error {
	if sess.Status == "" {
		sess.Status = domain.StatusWaiting
	}
	if sess.DurationMinutes == 0 {
		sess.DurationMinutes = domain.DefaultDurationMinutes
	}
	const query = `
		INSERT INTO chat_sessions (seeker_id, listener_id, topic_id, description, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		sess.SeekerID,
		nullable(sess.ListenerID),
		nullable(sess.TopicID),
		sess.Description,
		sess.DurationMinutes,
		sess.Status,
	).Scan(&sess.ID, &sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert session: %w", err)
	}

	row := *sess
	s.publishSession(domain.ChangeInsert, &row, nil)
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status domain.Status) error {
	old, err := s.Session(ctx, id)
	if err != nil {
		return err
	}
	const query = `UPDATE chat_sessions SET status = $2 WHERE id = $1
		RETURNING ` + sessionColumns
	row, err := scanSession(s.db.QueryRowContext(ctx, query, id, status))
	if errors.Is(err, sql.ErrNoRows) {
		return backend.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: update session %s status: %w", id, err)
	}
	s.publishSession(domain.ChangeUpdate, row, old)
	return nil
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *Store) WaitingSessions(ctx context.Context, since time.Time) ([]domain.Session, error) {
	out, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
		WHERE status = 'waiting' AND created_at > $1
		ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: waiting sessions: %w", err)
	}
	return out, nil
}

func (s *Store) SessionsForProfile(ctx context.Context, profileID string) ([]domain.Session, error) {
	out, err := s.querySessions(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
		WHERE seeker_id = $1 OR listener_id = $1
		ORDER BY created_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("postgres: sessions for %s: %w", profileID, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Rows: messages
// ---------------------------------------------------------------------------

func (s *Store) Messages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
		SELECT m.id, m.session_id, m.sender_id, m.content, m.created_at, COALESCE(p.nickname, '')
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.sender_id
		WHERE m.session_id = $1
		ORDER BY m.created_at ASC, m.id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content, &m.CreatedAt, &m.SenderNickname); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) InsertMessage(ctx context.Context, m *domain.Message) error {
	const query = `
		INSERT INTO messages (session_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	if err := s.db.QueryRowContext(ctx, query, m.SessionID, m.SenderID, m.Content).Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("postgres: insert message: %w", err)
	}
	if s.pub != nil {
		row := *m
		row.SenderNickname = ""
		if err := s.pub.PublishMessage(row); err != nil {
			log.Printf("[postgres] publish message %s: %v", m.ID, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rows: profiles, transactions, topics, journal
// ---------------------------------------------------------------------------

const profileColumns = `id, COALESCE(user_id::text, ''), nickname, bio, role, rating_average,
	rating_count, total_sessions, is_available, listener_status`

func scanProfile(r rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	err := r.Scan(&p.ID, &p.UserID, &p.Nickname, &p.Bio, &p.Role, &p.RatingAverage,
		&p.RatingCount, &p.TotalSessions, &p.IsAvailable, &p.ListenerStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan profile: %w", err)
	}
	return &p, nil
}

func (s *Store) Profile(ctx context.Context, id string) (*domain.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (s *Store) ProfileByNickname(ctx context.Context, nickname string) (*domain.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE nickname = $1`, nickname))
}

func (s *Store) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	const query = `
		UPDATE profiles
		   SET nickname = $2, bio = $3, is_available = $4, listener_status = $5
		 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, p.ID, p.Nickname, p.Bio, p.IsAvailable, p.ListenerStatus)
	if err != nil {
		return fmt.Errorf("postgres: update profile %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	const query = `
		INSERT INTO transactions (session_id, profile_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, t.SessionID, t.ProfileID, t.Amount, t.Currency, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction: %w", err)
	}
	return nil
}

func (s *Store) Topics(ctx context.Context) ([]domain.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, color, is_active
		FROM topics WHERE is_active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: topics: %w", err)
	}
	defer rows.Close()

	var out []domain.Topic
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Color, &t.IsActive); err != nil {
			return nil, fmt.Errorf("postgres: scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) MoodEntries(ctx context.Context, profileID string) ([]domain.MoodEntry, error) {
	const query = `
		SELECT id, profile_id, mood, mood_score, notes, emotions, created_at
		FROM mood_entries
		WHERE profile_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("postgres: mood entries %s: %w", profileID, err)
	}
	defer rows.Close()

	var out []domain.MoodEntry
	for rows.Next() {
		var e domain.MoodEntry
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Mood, &e.MoodScore, &e.Notes, pq.Array(&e.Emotions), &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan mood entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertMoodEntry(ctx context.Context, e *domain.MoodEntry) error {
	if e.Emotions == nil {
		e.Emotions = []string{}
	}
	const query = `
		INSERT INTO mood_entries (profile_id, mood, mood_score, notes, emotions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, e.ProfileID, e.Mood, e.MoodScore, e.Notes, pq.Array(e.Emotions)).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert mood entry: %w", err)
	}
	return nil
}
