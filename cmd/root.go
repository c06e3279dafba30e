package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kvs/cmd/bench"
	"github.com/ValentinKolb/kvs/cmd/client"
	"github.com/ValentinKolb/kvs/cmd/jobs"
	"github.com/ValentinKolb/kvs/cmd/serve"
	"github.com/ValentinKolb/kvs/cmd/util"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvs",
		Short: "in-memory key-value store with change notifications",
		Long: fmt.Sprintf(`kvs (v%s)

An in-memory key-value store with a fixed-bucket table, job files for
batch processing, bounded concurrent backups and subscription sessions
that receive a notification for every change of a subscribed key.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: initLogging,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvs",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvs v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(jobs.JobsCmd)
	RootCmd.AddCommand(client.ClientCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, common.TransportFIFO, util.WrapString("transport to use (fifo, unix, tcp)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// initLogging binds the persistent flags and configures all loggers
func initLogging(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
