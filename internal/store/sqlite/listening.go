package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/store"
)

// sessionColumns is the ordered column list for session queries.
// Must match the scan order in scanSession.
const sessionColumns = `id, book_id, start_seconds, end_seconds,
	started_at, ended_at, rate, device_id, created_at`

// scanSession scans a sql.Row (or sql.Rows via its Scan method) into
// a domain.ListeningSession.
func scanSession(scanner interface{ Scan(dest ...any) error }) (*domain.ListeningSession, error) {
	var sess domain.ListeningSession

	var (
		startedAt string
		endedAt   string
		createdAt string
		deviceID  sql.NullString
	)

	err := scanner.Scan(
		&sess.ID,
		&sess.BookID,
		&sess.StartSeconds,
		&sess.EndSeconds,
		&startedAt,
		&endedAt,
		&sess.Rate,
		&deviceID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	sess.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	sess.EndedAt, err = parseTime(endedAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		sess.DeviceID = deviceID.String
	}

	return &sess, nil
}

// RecordSession appends a listening session. A missing ID is filled
// in; a duplicate ID returns store.ErrAlreadyExists.
func (s *Store) RecordSession(ctx context.Context, session domain.ListeningSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listening_sessions (
			id, book_id, start_seconds, end_seconds,
			started_at, ended_at, rate, device_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.BookID,
		session.StartSeconds,
		session.EndSeconds,
		formatTime(session.StartedAt),
		formatTime(session.EndedAt),
		session.Rate,
		nullString(session.DeviceID),
		formatTime(session.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SessionsForBook returns the sessions for a book, newest first.
// limit <= 0 returns everything.
func (s *Store) SessionsForBook(ctx context.Context, bookID string, limit int) ([]*domain.ListeningSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM listening_sessions WHERE book_id = ?
		ORDER BY started_at DESC`
	args := []any{bookID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.ListeningSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DailyTotals aggregates listening per local day over the trailing
// window, oldest first. Days without sessions appear with zeros.
func (s *Store) DailyTotals(ctx context.Context, days int) ([]domain.DailyListening, error) {
	if days <= 0 {
		days = 30
	}

	now := time.Now()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	windowStart := today.AddDate(0, 0, -(days - 1))

	rows, err := s.db.QueryContext(ctx, `
		SELECT started_at, end_seconds - start_seconds, book_id
		FROM listening_sessions
		WHERE started_at >= ?
		ORDER BY started_at`,
		formatTime(windowStart))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Bucket in Go: stored timestamps are UTC but days are local,
	// and SQLite's date() can't apply the process timezone.
	type bucket struct {
		seconds float64
		books   map[string]struct{}
	}
	buckets := make(map[string]*bucket, days)

	for rows.Next() {
		var startedAt string
		var seconds float64
		var bookID string
		if err := rows.Scan(&startedAt, &seconds, &bookID); err != nil {
			return nil, err
		}
		started, err := parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		key := started.In(now.Location()).Format(time.DateOnly)
		b := buckets[key]
		if b == nil {
			b = &bucket{books: make(map[string]struct{})}
			buckets[key] = b
		}
		b.seconds += seconds
		b.books[bookID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totals := make([]domain.DailyListening, 0, days)
	for d := windowStart; !d.After(today); d = d.AddDate(0, 0, 1) {
		entry := domain.DailyListening{Date: d}
		if b := buckets[d.Format(time.DateOnly)]; b != nil {
			entry.ListenSeconds = b.seconds
			entry.BooksListened = len(b.books)
		}
		totals = append(totals, entry)
	}
	return totals, nil
}

// TotalListenSeconds sums narrated-content time across all sessions.
func (s *Store) TotalListenSeconds(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(end_seconds - start_seconds) FROM listening_sessions`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// Summary returns the headline stats: lifetime listen time, session
// count, and the current consecutive-day streak ending today or
// yesterday.
func (s *Store) Summary(ctx context.Context) (domain.ListeningSummary, error) {
	var summary domain.ListeningSummary

	var total sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(end_seconds - start_seconds), COUNT(*) FROM listening_sessions`).
		Scan(&total, &count)
	if err != nil {
		return summary, err
	}
	summary.TotalListenSeconds = total.Float64
	summary.SessionCount = count

	// Streak window: a year back is more than any plausible streak
	// we need to report exactly.
	totals, err := s.DailyTotals(ctx, 365)
	if err != nil {
		return summary, err
	}
	streak := 0
	for i := len(totals) - 1; i >= 0; i-- {
		if totals[i].ListenSeconds > 0 {
			streak++
			continue
		}
		// A quiet today doesn't break yesterday's streak.
		if i == len(totals)-1 {
			continue
		}
		break
	}
	summary.CurrentStreakDays = streak

	return summary, nil
}

// DeleteSessionsForBook removes a book's session history. Called when
// a book leaves the library.
func (s *Store) DeleteSessionsForBook(ctx context.Context, bookID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM listening_sessions WHERE book_id = ?`, bookID)
	return err
}
