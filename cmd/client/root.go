package client

import (
	"os"

	cmdUtil "github.com/ValentinKolb/kvs/cmd/util"
	"github.com/ValentinKolb/kvs/rpc/client"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ClientCmd opens an interactive subscription session
	ClientCmd = &cobra.Command{
		Use:   "client",
		Short: "Open a subscription session",
		Long: `Open a subscription session with a running kvs server. Commands are read
from stdin, notifications of subscribed keys are printed as (key,value) lines.

` + helpText,
		RunE: run,
	}
)

func init() {
	cmdUtil.SetupTransportFlags(ClientCmd)

	key := "client-id"
	ClientCmd.Flags().String(key, "", cmdUtil.WrapString("Name of the client pipes (fifo) or connection id (unix, tcp). Random if empty"))

	key = "fifo-dir"
	ClientCmd.Flags().String(key, os.TempDir(), cmdUtil.WrapString("Directory of the client pipes (fifo only)"))

	key = "timeout"
	ClientCmd.Flags().Int(key, 10, cmdUtil.WrapString("The timeout in seconds of the client"))
}

func run(_ *cobra.Command, _ []string) error {
	config := common.ClientConfig{
		Transport:     cmdUtil.GetTransportConfig(),
		ClientID:      viper.GetString("client-id"),
		FIFODir:       viper.GetString("fifo-dir"),
		TimeoutSecond: viper.GetInt("timeout"),
	}

	t, err := cmdUtil.GetClientTransport()
	if err != nil {
		return err
	}

	c, err := client.Connect(config, t)
	if err != nil {
		return err
	}
	return runSession(c, os.Stdin, os.Stdout, os.Stderr)
}
