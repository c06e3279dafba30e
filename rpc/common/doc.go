// Package common provides the data structures shared by the session server,
// the session client and the transports.
//
// The package focuses on:
//   - The binary session protocol (requests, responses, notifications, connect requests)
//   - Configuration structures for server and client
//   - Custom logging implementation on top of the dragonboat logger facade
//
// Wire format (all fields NUL padded):
//
//	request       op[1] (key[41] for subscribe and unsubscribe)
//	response      op[1] status[1]            status 0 = ok, 1 = failed
//	notification  key[41] value[41]          value "DELETED" for deletions
//	connect       op[1] req[40] resp[40] notif[40]   (fifo register pipe only)
package common
