// Package jobs runs job files against a store.
//
// A job file holds one command per line:
//
//	WRITE [(key,value)(key2,value2)]
//	READ [key,key2]
//	DELETE [key,key2]
//	SHOW
//	WAIT <delay_ms>
//	BACKUP
//	HELP
//
// Blank lines and lines starting with '#' are ignored. The results of job
// "<dir>/<name>.job" are written to "<dir>/<name>.out", its n-th BACKUP to
// "<dir>/<name>-<n>.bck". The Runner executes a directory of jobs on a bounded
// pool of goroutines and can keep watching the directory for new jobs.
package jobs
