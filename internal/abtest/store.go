package abtest

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown tests, variants and sends.
var ErrNotFound = errors.New("not found")

// Store owns the mutable state of experiments: tests, their variants and
// per-variant counters. All counter mutations run in a transaction so that
// the Send row and the variant counter move together.
type Store struct {
	db *sql.DB

	now  func() time.Time
	pick func(n int) int
}

// NewStore creates a store over an opened test-tracking database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:   db,
		now:  time.Now,
		pick: rand.Intn,
	}
}

// CreateTest registers a new experiment with one variant per content
// string. Variant IDs are derived from the test ID and the ordinal index,
// making them unique across the whole system.
func (s *Store) CreateTest(name string, kind VariantKind, contents []string) (string, error) {
	if len(contents) == 0 {
		return "", fmt.Errorf("create test %q: at least one variant is required", name)
	}

	testID := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO tests (test_id, test_name, variant_type, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		testID, name, string(kind), string(StatusRunning), s.now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create test: %w", err)
	}

	for i, content := range contents {
		variantID := fmt.Sprintf("%s_v%d", testID, i)
		_, err = tx.Exec(`
			INSERT INTO variants (variant_id, test_id, ordinal, content)
			VALUES (?, ?, ?, ?)`,
			variantID, testID, i, content,
		)
		if err != nil {
			return "", fmt.Errorf("failed to create variant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return testID, nil
}

// AssignVariant picks one of the test's variants uniformly at random.
// Assignment is stateless: every call re-rolls, and stickiness per
// recipient is the caller's concern.
func (s *Store) AssignVariant(testID string) (variantID, content string, err error) {
	variants, err := s.Variants(testID)
	if err != nil {
		return "", "", err
	}
	if len(variants) == 0 {
		return "", "", fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}

	chosen := variants[s.pick(len(variants))]
	return chosen.ID, chosen.Content, nil
}

// RecordSend creates a Send row and increments the variant's send counter.
func (s *Store) RecordSend(variantID, recipient string) (string, error) {
	sendID := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE variants SET sends = sends + 1 WHERE variant_id = ?`, variantID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}

	_, err = tx.Exec(`
		INSERT INTO sends (send_id, variant_id, recipient, sent_at)
		VALUES (?, ?, ?, ?)`,
		sendID, variantID, recipient, s.now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record send: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return sendID, nil
}

// RecordOpen marks a send as opened and increments the variant's open
// counter. Idempotent: an already-set opened_at guards the counter, so a
// second call for the same send is a no-op.
func (s *Store) RecordOpen(sendID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE sends SET opened_at = ? WHERE send_id = ? AND opened_at IS NULL`,
		s.now(), sendID)
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Either already opened (fine) or the send does not exist.
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sends WHERE send_id = ?`, sendID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("send %s: %w", sendID, ErrNotFound)
		}
		return tx.Commit()
	}

	_, err = tx.Exec(`
		UPDATE variants SET opens = opens + 1
		WHERE variant_id = (SELECT variant_id FROM sends WHERE send_id = ?)`, sendID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// RecordReply marks a send as replied with the given sentiment and bumps
// the variant's reply counters. Same first-observation-wins guard as
// RecordOpen; a second reply for the same send changes nothing.
func (s *Store) RecordReply(sendID string, sentiment Sentiment) error {
	switch sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	case "":
		sentiment = SentimentNeutral
	default:
		return fmt.Errorf("invalid sentiment %q", sentiment)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE sends SET replied_at = ?, reply_sentiment = ?
		WHERE send_id = ? AND replied_at IS NULL`,
		s.now(), string(sentiment), sendID)
	if err != nil {
		return err
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM sends WHERE send_id = ?`, sendID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("send %s: %w", sendID, ErrNotFound)
		}
		return tx.Commit()
	}

	_, err = tx.Exec(`
		UPDATE variants SET replies = replies + 1
		WHERE variant_id = (SELECT variant_id FROM sends WHERE send_id = ?)`, sendID)
	if err != nil {
		return err
	}

	if sentiment == SentimentPositive {
		_, err = tx.Exec(`
			UPDATE variants SET positive_replies = positive_replies + 1
			WHERE variant_id = (SELECT variant_id FROM sends WHERE send_id = ?)`, sendID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTest returns one test.
func (s *Store) GetTest(testID string) (*Test, error) {
	t := &Test{}
	var winner sql.NullString
	err := s.db.QueryRow(`
		SELECT test_id, test_name, variant_type, status, winner_id, created_at
		FROM tests WHERE test_id = ?`, testID,
	).Scan(&t.ID, &t.Name, (*string)(&t.Kind), (*string)(&t.Status), &winner, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("test %s: %w", testID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		t.WinnerID = winner.String
	}
	return t, nil
}

// ListTests returns all tests, newest first.
func (s *Store) ListTests() ([]Test, error) {
	rows, err := s.db.Query(`
		SELECT test_id, test_name, variant_type, status, winner_id, created_at
		FROM tests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tests := []Test{}
	for rows.Next() {
		var t Test
		var winner sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, (*string)(&t.Kind), (*string)(&t.Status), &winner, &t.CreatedAt); err != nil {
			return nil, err
		}
		if winner.Valid {
			t.WinnerID = winner.String
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// Variants returns the test's variants in creation order with current
// counters. The slice is a read-only snapshot.
func (s *Store) Variants(testID string) ([]Variant, error) {
	rows, err := s.db.Query(`
		SELECT variant_id, test_id, content, sends, opens, replies, positive_replies
		FROM variants WHERE test_id = ? ORDER BY ordinal`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := []Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.TestID, &v.Content, &v.Sends, &v.Opens, &v.Replies, &v.PositiveReplies); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// GetSend returns one send row.
func (s *Store) GetSend(sendID string) (*Send, error) {
	row := s.db.QueryRow(`
		SELECT send_id, variant_id, recipient, sent_at, opened_at, replied_at, reply_sentiment
		FROM sends WHERE send_id = ?`, sendID)

	var sd Send
	var opened, replied sql.NullTime
	var sentiment sql.NullString
	err := row.Scan(&sd.ID, &sd.VariantID, &sd.Recipient, &sd.SentAt, &opened, &replied, &sentiment)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("send %s: %w", sendID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if opened.Valid {
		sd.OpenedAt = &opened.Time
	}
	if replied.Valid {
		sd.RepliedAt = &replied.Time
	}
	if sentiment.Valid {
		sd.Sentiment = Sentiment(sentiment.String)
	}
	return &sd, nil
}

// CompleteTest transitions a test to completed with the given winner.
// Completed tests are immutable; completing twice is an error.
func (s *Store) CompleteTest(testID, winnerID string) error {
	return s.transition(testID, StatusCompleted, winnerID)
}

// PauseTest pauses a running test.
func (s *Store) PauseTest(testID string) error {
	return s.transition(testID, StatusPaused, "")
}

// ResumeTest resumes a paused test.
func (s *Store) ResumeTest(testID string) error {
	return s.transition(testID, StatusRunning, "")
}

// transition moves a test to a new status. The completed-immutability guard
// lives in the UPDATE itself so concurrent transitions cannot both pass a
// separate read-then-write check.
func (s *Store) transition(testID string, to TestStatus, winnerID string) error {
	var res sql.Result
	var err error
	if to == StatusCompleted {
		res, err = s.db.Exec(`UPDATE tests SET status = ?, winner_id = ? WHERE test_id = ? AND status != ?`,
			string(to), winnerID, testID, string(StatusCompleted))
	} else {
		res, err = s.db.Exec(`UPDATE tests SET status = ? WHERE test_id = ? AND status != ?`,
			string(to), testID, string(StatusCompleted))
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetTest(testID); err != nil {
			return err
		}
		return fmt.Errorf("test %s is completed and immutable", testID)
	}
	return nil
}
