// Package sqlite provides a SQLite-backed Store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lox/worldsim/internal/store"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store persists a simulated world in SQLite.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if path != MemoryPath {
		path = filepath.Clean(path)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serialises writers and keeps pragmas and in-memory
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertPerson(ctx context.Context, p store.Person) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO people (email, forename, surname, gender, birth_at, birth_city)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.Email, p.Forename, p.Surname, p.Gender, toMillis(p.BirthDate), p.BirthCity,
		); err != nil {
			return fmt.Errorf("insert person %s: %w", p.Email, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO residencies (email, city, start_at) VALUES (?, ?, ?)`,
			p.Email, p.BirthCity, toMillis(p.BirthDate),
		); err != nil {
			return fmt.Errorf("insert residency %s: %w", p.Email, err)
		}
		return nil
	})
}

func (s *Store) InsertMarriage(ctx context.Context, m store.Marriage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO marriages (id, wife_email, husband_email, city, married_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.WifeEmail, m.HusbandEmail, m.City, toMillis(m.Date),
	)
	if err != nil {
		return fmt.Errorf("insert marriage %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) InsertParentship(ctx context.Context, p store.Parentship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parentships (marriage_id, child_email) VALUES (?, ?)`,
		p.MarriageID, p.ChildEmail,
	)
	if err != nil {
		return fmt.Errorf("insert parentship %s/%s: %w", p.MarriageID, p.ChildEmail, err)
	}
	return nil
}

func (s *Store) InsertFriendship(ctx context.Context, f store.Friendship) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friendships (email, friend_email) VALUES (?, ?)`,
		f.Email, f.FriendEmail,
	)
	if err != nil {
		return false, fmt.Errorf("insert friendship %s/%s: %w", f.Email, f.FriendEmail, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert friendship %s/%s: %w", f.Email, f.FriendEmail, err)
	}
	return n > 0, nil
}

func (s *Store) InsertCompany(ctx context.Context, c store.Company) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, country, city, address, founded_at) VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Country, c.City, c.Address, toMillis(c.Founded),
	)
	if err != nil {
		return fmt.Errorf("insert company %s: %w", c.Name, err)
	}
	return nil
}

func (s *Store) InsertEmployment(ctx context.Context, e store.Employment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO employments (email, company, start_at) VALUES (?, ?, ?)`,
		e.Email, e.Company, toMillis(e.Start),
	)
	if err != nil {
		return fmt.Errorf("insert employment %s: %w", e.Email, err)
	}
	return nil
}

func (s *Store) Relocate(ctx context.Context, email, city string, at time.Time) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE residencies SET end_at = ? WHERE email = ? AND end_at IS NULL`,
			toMillis(at), email,
		)
		if err != nil {
			return fmt.Errorf("end residency %s: %w", email, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("end residency %s: %w", email, err)
		}
		if n == 0 {
			return fmt.Errorf("relocate %s: residency: %w", email, store.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO residencies (email, city, start_at) VALUES (?, ?, ?)`,
			email, city, toMillis(at),
		); err != nil {
			return fmt.Errorf("insert residency %s: %w", email, err)
		}
		return nil
	})
}

func (s *Store) Residents(ctx context.Context, city string) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT email FROM residencies
		 WHERE city = ? AND end_at IS NULL
		 ORDER BY email`,
		city,
	)
}

func (s *Store) SingleAdults(ctx context.Context, city, gender string, bornBefore time.Time) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT p.email FROM people p
		 JOIN residencies r ON r.email = p.email AND r.end_at IS NULL
		 WHERE r.city = ? AND p.gender = ? AND p.birth_at <= ?
		   AND NOT EXISTS (SELECT 1 FROM marriages m WHERE m.wife_email = p.email)
		   AND NOT EXISTS (SELECT 1 FROM marriages m WHERE m.husband_email = p.email)
		 ORDER BY p.email`,
		city, gender, toMillis(bornBefore),
	)
}

func (s *Store) BornIn(ctx context.Context, city string, date time.Time) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT email FROM people
		 WHERE birth_city = ? AND birth_at = ?
		 ORDER BY email`,
		city, toMillis(date),
	)
}

func (s *Store) Unemployed(ctx context.Context, city string, bornBefore time.Time) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT p.email FROM people p
		 JOIN residencies r ON r.email = p.email AND r.end_at IS NULL
		 WHERE r.city = ? AND p.birth_at <= ?
		   AND NOT EXISTS (SELECT 1 FROM employments e WHERE e.email = p.email)
		 ORDER BY p.email`,
		city, toMillis(bornBefore),
	)
}

func (s *Store) ResidentsBornOn(ctx context.Context, city string, date time.Time) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT p.email FROM people p
		 JOIN residencies r ON r.email = p.email AND r.end_at IS NULL
		 WHERE r.city = ? AND p.birth_at = ?
		 ORDER BY p.email`,
		city, toMillis(date),
	)
}

func (s *Store) Spouse(ctx context.Context, email string) (string, error) {
	var spouse string
	err := s.db.GetContext(ctx, &spouse,
		`SELECT husband_email FROM marriages WHERE wife_email = ?
		 UNION ALL
		 SELECT wife_email FROM marriages WHERE husband_email = ?
		 LIMIT 1`,
		email, email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select spouse of %s: %w", email, err)
	}
	return spouse, nil
}

func (s *Store) Friends(ctx context.Context, email string) ([]string, error) {
	return s.selectEmails(ctx,
		`SELECT friend_email FROM friendships
		 WHERE email = ?
		 ORDER BY friend_email`,
		email,
	)
}

type marriageRow struct {
	ID           string `db:"id"`
	WifeEmail    string `db:"wife_email"`
	HusbandEmail string `db:"husband_email"`
	City         string `db:"city"`
	MarriedAt    int64  `db:"married_at"`
}

func (s *Store) Marriages(ctx context.Context, city string) ([]store.Marriage, error) {
	var rows []marriageRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, wife_email, husband_email, city, married_at FROM marriages
		 WHERE city = ?
		 ORDER BY id`,
		city,
	); err != nil {
		return nil, fmt.Errorf("select marriages in %s: %w", city, err)
	}

	var marriages []store.Marriage
	for _, row := range rows {
		marriages = append(marriages, store.Marriage{
			ID:           row.ID,
			WifeEmail:    row.WifeEmail,
			HusbandEmail: row.HusbandEmail,
			City:         row.City,
			Date:         fromMillis(row.MarriedAt),
		})
	}
	return marriages, nil
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	var counts store.Counts
	err := s.db.GetContext(ctx, &counts,
		`SELECT
		   (SELECT COUNT(*) FROM people) AS people,
		   (SELECT COUNT(*) FROM residencies) - (SELECT COUNT(*) FROM people) AS relocations,
		   (SELECT COUNT(*) FROM marriages) AS marriages,
		   (SELECT COUNT(*) FROM parentships) AS parentships,
		   (SELECT COUNT(*) FROM friendships) AS friendships,
		   (SELECT COUNT(*) FROM companies) AS companies,
		   (SELECT COUNT(*) FROM employments) AS employments`,
	)
	if err != nil {
		return store.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return counts, nil
}

func (s *Store) selectEmails(ctx context.Context, query string, args ...any) ([]string, error) {
	var emails []string
	if err := s.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("select people: %w", err)
	}
	return emails, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
