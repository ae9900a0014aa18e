// Package state persists the protection decision across restarts.
//
// Two backends implement Store: a JSON file with atomic replace semantics
// (the default) and a single-row postgres table for deployments that already
// run a database. Either way the durable record is advisory — persistence
// failures are logged and the in-memory state stays authoritative.
package state
