// Package creds manages secrets on behalf of connections.
//
// Secrets are encrypted at rest and never handed out directly. A caller
// stores a secret and receives a credential id; access flows through
// short-lived, revocable tokens that reference exactly one credential and
// never contain the secret themselves. When a connection resolves a token,
// the store enforces permission grants by credential type: a connection may
// only resolve tokens whose underlying credential type is in its granted
// set.
//
// Two implementations share the Store interface. MemoryStore keeps sealed
// payloads in process memory; SQLiteStore persists them. When no encryption
// key is supplied, one is generated for the process lifetime and every
// stored secret becomes unrecoverable after restart. The store logs a loud
// warning when that happens rather than hiding it.
package creds
