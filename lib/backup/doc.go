// Package backup writes snapshots of the table to files with a bounded number
// of concurrent writers.
//
// Each backup copies the table under the exclusive table lock (a short
// operation proportional to the number of entries), releases the lock and then
// serializes the private copy on its own goroutine. The copy is never touched
// by later operations, so the file reflects exactly the table state at copy time.
//
// Backup files are named "<name>-<seq>.bck" and contain one "(key,value)" line
// per entry in table enumeration order.
package backup
