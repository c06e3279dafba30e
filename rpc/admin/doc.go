// Package admin implements the optional HTTP endpoint of the server process.
// It exposes health, metrics, a SHOW of the store, store and session info and
// a way to end all sessions. It never mutates the store.
package admin
