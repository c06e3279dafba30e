// Package cmd implements the command-line interface of kvs. It provides a
// hierarchical command structure for running the server and its clients.
//
// The package is organized into several subpackages:
//
//   - serve: starts the server (job files, sessions, admin endpoint)
//   - jobs: runs the job files of a directory against a fresh store and exits
//   - client: interactive subscription session
//   - bench: stress test of a local store
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable KVS_<FLAG>
// (e.g. KVS_MAX_BACKUPS=5), .env and .env.local files are loaded.
// See kvs -help for a list of all commands.
package cmd
