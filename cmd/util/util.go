package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/ValentinKolb/kvs/rpc/transport/fifo"
	"github.com/ValentinKolb/kvs/rpc/transport/tcp"
	"github.com/ValentinKolb/kvs/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// DefaultEndpoint returns the default endpoint of a transport
func DefaultEndpoint(transportType string) string {
	switch transportType {
	case common.TransportUnix:
		return filepath.Join(os.TempDir(), "kvs.sock")
	case common.TransportTCP:
		return "localhost:7070"
	default:
		return filepath.Join(os.TempDir(), "kvs", "register")
	}
}

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read KVS_<flag> environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kvs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Store flags
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags of the store configuration to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "max-backups"
	cmd.Flags().Int(key, store.DefaultMaxBackups, WrapString("Maximum number of backups running at the same time"))

	key = "max-subscriptions"
	cmd.Flags().Int(key, store.DefaultMaxSubscriptions, WrapString("Maximum number of subscriptions per session"))

	key = "hash-function"
	cmd.Flags().String(key, db.HashLetter, WrapString(fmt.Sprintf("Hash function mapping keys to buckets (%s, %s, %s)", db.HashLetter, db.HashFNV, db.HashXX)))
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() store.Config {
	return store.Config{
		MaxBackups:       viper.GetInt("max-backups"),
		MaxSubscriptions: viper.GetInt("max-subscriptions"),
		HashFunction:     viper.GetString("hash-function"),
	}
}

// --------------------------------------------------------------------------
// Transport flags
// --------------------------------------------------------------------------

// SetupTransportFlags adds the transport flags to a command
func SetupTransportFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.Flags().String(key, "", WrapString("Register pipe (fifo), socket path (unix) or host:port (tcp). Defaults depend on the transport"))

	key = "tcp-nodelay"
	cmd.Flags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	cmd.Flags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only, 0 = off)"))
}

// GetTransportConfig reads the transport configuration from viper
func GetTransportConfig() common.TransportConfig {
	t := viper.GetString("transport")
	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		endpoint = DefaultEndpoint(t)
	}
	return common.TransportConfig{
		Type:            t,
		Endpoint:        endpoint,
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IServerTransport, error) {
	switch t := viper.GetString("transport"); t {
	case common.TransportFIFO:
		return fifo.NewFIFOServerTransport(), nil
	case common.TransportTCP:
		return tcp.NewTCPServerTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", t)
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IClientTransport, error) {
	switch t := viper.GetString("transport"); t {
	case common.TransportFIFO:
		return fifo.NewFIFOClientTransport(), nil
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", t)
	}
}
