package common

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/kvs/lib/store"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

const (
	TransportFIFO = "fifo"
	TransportUnix = "unix"
	TransportTCP  = "tcp"
)

// TransportConfig selects how sessions reach the server
type TransportConfig struct {
	// Type is one of TransportFIFO, TransportUnix, TransportTCP
	Type string
	// Endpoint is the register pipe (fifo), the socket path (unix) or host:port (tcp)
	Endpoint string
	// TCPNoDelay disables Nagle's algorithm on tcp connections
	TCPNoDelay bool
	// TCPKeepAliveSec enables keep-alive probes with this period (0 = off)
	TCPKeepAliveSec int
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the server.
type ServerConfig struct {
	Transport TransportConfig

	// MaxSessions is the number of sessions served at the same time
	MaxSessions int
	// PendingSessions is the number of connected clients waiting for a free session handler
	PendingSessions int
	// TimeoutSecond bounds handshakes and notification writes (0 = no timeout)
	TimeoutSecond int64

	// Jobs
	JobsDir    string
	MaxThreads int
	Watch      bool

	// Restore is a backup file loaded before serving ("" = none)
	Restore string

	// AdminEndpoint is the listen address of the admin HTTP endpoint ("" = off)
	AdminEndpoint string

	// Logging configuration
	LogLevel string

	Store store.Config
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Sessions")
	addField("Transport", c.Transport.Type)
	addField("Endpoint", c.Transport.Endpoint)
	addField("Max Sessions", strconv.Itoa(c.MaxSessions))
	addField("Pending Sessions", strconv.Itoa(c.PendingSessions))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Jobs")
	if c.JobsDir == "" {
		addField("Directory", "-")
	} else {
		addField("Directory", c.JobsDir)
		addField("Max Threads", strconv.Itoa(c.MaxThreads))
		addField("Watch", strconv.FormatBool(c.Watch))
	}

	addSection("Admin")
	if c.AdminEndpoint == "" {
		addField("Endpoint", "-")
	} else {
		addField("Endpoint", c.AdminEndpoint)
	}

	if c.Restore != "" {
		addSection("Restore")
		addField("File", c.Restore)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	sb.WriteString(c.Store.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport TransportConfig
	// ClientID names the pipes of the fifo transport and pairs the connections of the socket transports
	ClientID string
	// FIFODir is the directory of the client pipes (fifo transport only)
	FIFODir       string
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Client ID", c.ClientID)
	addField("Transport", c.Transport.Type)
	addField("Endpoint", c.Transport.Endpoint)
	if c.Transport.Type == TransportFIFO {
		addField("Pipe Directory", c.FIFODir)
	}
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
