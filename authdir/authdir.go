/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package authdir is the in-memory user credential directory SASL PLAIN
// checks against. spec.md §1 Non-goals excludes persistent storage of
// rosters or offline messages, but authentication itself is core scope
// (spec.md §4.6's `sasl` state), so this directory deliberately holds
// nothing but hashed passwords, in memory, for the lifetime of the
// process — it is not the teacher's SQL-backed storage.Instance().
package authdir

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Directory is a concurrency-safe username → password-hash map.
type Directory struct {
	mu    sync.RWMutex
	users map[string][]byte
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{users: make(map[string][]byte)}
}

// Register stores username with a bcrypt hash of password, overwriting any
// existing entry.
func (d *Directory) Register(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = hash
	return nil
}

// Verify reports whether password matches the stored hash for username.
func (d *Directory) Verify(username, password string) bool {
	d.mu.RLock()
	hash, ok := d.users[username]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// Exists reports whether username has been registered.
func (d *Directory) Exists(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok
}
