package cache

import (
	"fmt"
	"time"
)

// ReplaceUsers swaps the cached user directory snapshot in a transaction.
func (db *DB) ReplaceUsers(users map[int64]string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	now := time.Now().UnixMilli()
	for id, name := range users {
		if _, err := tx.Exec(`INSERT INTO users (id, name, updated_at) VALUES (?, ?, ?)`, id, name, now); err != nil {
			return fmt.Errorf("insert user %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// ReplaceContacts swaps the cached contact directory snapshot.
func (db *DB) ReplaceContacts(contacts map[string]string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM contacts`); err != nil {
		return fmt.Errorf("clear contacts: %w", err)
	}
	now := time.Now().UnixMilli()
	for phone, name := range contacts {
		if _, err := tx.Exec(`INSERT INTO contacts (phone, name, updated_at) VALUES (?, ?, ?)`, phone, name, now); err != nil {
			return fmt.Errorf("insert contact %q: %w", phone, err)
		}
	}
	return tx.Commit()
}

// Users returns the cached user directory.
func (db *DB) Users() (map[int64]string, error) {
	rows, err := db.Query(`SELECT id, name FROM users`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		users[id] = name
	}
	return users, rows.Err()
}

// Contacts returns the cached contact directory.
func (db *DB) Contacts() (map[string]string, error) {
	rows, err := db.Query(`SELECT phone, name FROM contacts`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	contacts := make(map[string]string)
	for rows.Next() {
		var phone, name string
		if err := rows.Scan(&phone, &name); err != nil {
			return nil, err
		}
		contacts[phone] = name
	}
	return contacts, rows.Err()
}
