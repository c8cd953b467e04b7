package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SecretStore keeps the gateway's only durable local state: commit salts and
// targets written at wolf-commit time, seer results decoded from logs, and
// the per-role "last game address" convenience entry. Every key includes the
// account so that two accounts sharing one database never see each other's
// secrets.
type SecretStore struct {
	db *sqlx.DB
}

// StoredCommitment is the pair a wolf must reveal verbatim.
type StoredCommitment struct {
	TargetSeat uint8  `db:"target_seat"`
	Salt       string `db:"salt"`
}

// StoredSeerResult is the last seer check cached for the current night.
type StoredSeerResult struct {
	Seat    uint8 `db:"seat"`
	Faction uint8 `db:"faction"`
}

func OpenSecretStore(dsn string) (*SecretStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	s := &SecretStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SecretStore) init() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS commitment (
		game TEXT NOT NULL,
		account TEXT NOT NULL,
		day INTEGER NOT NULL,
		target_seat INTEGER NOT NULL,
		salt TEXT NOT NULL,
		UNIQUE(game, account, day)
	);
	CREATE TABLE IF NOT EXISTS seer_result (
		game TEXT NOT NULL,
		account TEXT NOT NULL,
		day INTEGER NOT NULL,
		seat INTEGER NOT NULL,
		faction INTEGER NOT NULL,
		UNIQUE(game, account, day)
	);
	CREATE TABLE IF NOT EXISTS last_game (
		role TEXT NOT NULL,
		account TEXT NOT NULL,
		game TEXT NOT NULL,
		UNIQUE(role, account)
	)`
	if _, err := s.db.Exec(schema); err != nil {
		log.Printf("SecretStore init error: %v", err)
		return err
	}
	return nil
}

func (s *SecretStore) Close() error {
	return s.db.Close()
}

// normKey lowercases an address-ish key component so lookups are not
// case-sensitive across checksummed and plain hex spellings.
func normKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// SaveCommitment records the salt and target chosen at commit time. A second
// commit for the same (game, account, day) overwrites the first, matching the
// contract's own latest-commit-wins behavior.
func (s *SecretStore) SaveCommitment(game, account string, day uint64, targetSeat uint8, salt string) error {
	if !IsValidSalt(salt) {
		return fmt.Errorf("refusing to store malformed salt %q", salt)
	}
	_, err := s.db.Exec(`
		INSERT INTO commitment (game, account, day, target_seat, salt)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game, account, day)
		DO UPDATE SET target_seat = excluded.target_seat, salt = excluded.salt`,
		normKey(game), normKey(account), day, targetSeat, salt)
	if err != nil {
		return fmt.Errorf("save commitment: %w", err)
	}
	LogDBState("after save commitment")
	return nil
}

// LoadCommitment returns the stored pair for (game, account, day), or
// ok=false when this account never committed on this day. Records for other
// accounts or other days are never consulted.
func (s *SecretStore) LoadCommitment(game, account string, day uint64) (StoredCommitment, bool, error) {
	var c StoredCommitment
	err := s.db.Get(&c, `
		SELECT target_seat, salt FROM commitment
		WHERE game = ? AND account = ? AND day = ?`,
		normKey(game), normKey(account), day)
	if err == sql.ErrNoRows {
		return c, false, nil
	}
	if err != nil {
		return c, false, fmt.Errorf("load commitment: %w", err)
	}
	return c, true, nil
}

// SaveSeerResult caches a decoded SeerChecked event so a restart still shows
// the last check for the current night.
func (s *SecretStore) SaveSeerResult(game, account string, day uint64, seat, faction uint8) error {
	_, err := s.db.Exec(`
		INSERT INTO seer_result (game, account, day, seat, faction)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game, account, day)
		DO UPDATE SET seat = excluded.seat, faction = excluded.faction`,
		normKey(game), normKey(account), day, seat, faction)
	if err != nil {
		return fmt.Errorf("save seer result: %w", err)
	}
	return nil
}

func (s *SecretStore) LoadSeerResult(game, account string, day uint64) (StoredSeerResult, bool, error) {
	var r StoredSeerResult
	err := s.db.Get(&r, `
		SELECT seat, faction FROM seer_result
		WHERE game = ? AND account = ? AND day = ?`,
		normKey(game), normKey(account), day)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, fmt.Errorf("load seer result: %w", err)
	}
	return r, true, nil
}

// SaveLastGame remembers the game address last used by this account in a
// given role ("player" or "host"). UI convenience only, not protocol state.
func (s *SecretStore) SaveLastGame(role, account, game string) error {
	_, err := s.db.Exec(`
		INSERT INTO last_game (role, account, game)
		VALUES (?, ?, ?)
		ON CONFLICT(role, account)
		DO UPDATE SET game = excluded.game`,
		role, normKey(account), normKey(game))
	if err != nil {
		return fmt.Errorf("save last game: %w", err)
	}
	return nil
}

func (s *SecretStore) LoadLastGame(role, account string) (string, bool, error) {
	var game string
	err := s.db.Get(&game, `
		SELECT game FROM last_game WHERE role = ? AND account = ?`,
		role, normKey(account))
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load last game: %w", err)
	}
	return game, true, nil
}
