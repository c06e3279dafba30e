package serve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/kvs/cmd/util"
	"github.com/ValentinKolb/kvs/lib/jobs"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/store/lstore"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/ValentinKolb/kvs/rpc/admin"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("kvs")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the kvs server",
		Long: `Start the kvs server with the specified configuration. The server runs the job files
of --jobs-dir, serves subscription sessions and optionally the admin endpoint.
SIGUSR1 disconnects all sessions, SIGINT and SIGTERM stop the server after the
running jobs and backups are finished.

The configuration can be set via command line flags or environment variables.
The format of the environment variables is KVS_<flag> (e.g. KVS_MAX_SESSIONS=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupTransportFlags(ServeCmd)
	cmdUtil.SetupStoreFlags(ServeCmd)

	key := "max-sessions"
	ServeCmd.Flags().Int(key, 4, cmdUtil.WrapString("Number of sessions served at the same time"))

	key = "pending-sessions"
	ServeCmd.Flags().Int(key, 0, cmdUtil.WrapString("Number of connected clients waiting for a free session (0 = max-sessions)"))

	key = "timeout"
	ServeCmd.Flags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for handshakes and notification writes"))

	key = "jobs-dir"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Directory with *.job files to run (empty = no jobs)"))

	key = "max-threads"
	ServeCmd.Flags().Int(key, 4, cmdUtil.WrapString("Number of job files processed at the same time"))

	key = "watch"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Keep watching --jobs-dir and run job files created later"))

	key = "restore"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Backup file to load before serving"))

	key = "admin"
	ServeCmd.Flags().String(key, "", cmdUtil.WrapString("Listen address of the admin HTTP endpoint (e.g. localhost:7071, empty = off)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Transport = cmdUtil.GetTransportConfig()
	serveCmdConfig.MaxSessions = viper.GetInt("max-sessions")
	serveCmdConfig.PendingSessions = viper.GetInt("pending-sessions")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.JobsDir = viper.GetString("jobs-dir")
	serveCmdConfig.MaxThreads = viper.GetInt("max-threads")
	serveCmdConfig.Watch = viper.GetBool("watch")
	serveCmdConfig.Restore = viper.GetString("restore")
	serveCmdConfig.AdminEndpoint = viper.GetString("admin")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Store = cmdUtil.GetStoreConfig()

	if serveCmdConfig.MaxSessions < 1 {
		return fmt.Errorf("max-sessions must be at least 1")
	}
	if serveCmdConfig.MaxThreads < 1 {
		return fmt.Errorf("max-threads must be at least 1")
	}
	if serveCmdConfig.Watch && serveCmdConfig.JobsDir == "" {
		return fmt.Errorf("--watch requires --jobs-dir")
	}
	return serveCmdConfig.Store.Validate()
}

// run starts the kvs server
func run(_ *cobra.Command, _ []string) error {
	config := *serveCmdConfig
	Logger.Infof("Starting kvs server%s", config.String())

	metrics := telemetry.New()
	st, err := lstore.NewLocalStore(config.Store, lstore.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			Logger.Errorf("Failed to close store: %v", err)
		}
	}()

	if config.Restore != "" {
		if err := restore(st, config.Restore); err != nil {
			return err
		}
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}
	sessions := server.NewSessionServer(config, st, t, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-usr1:
				Logger.Infof("Received SIGUSR1, disconnecting all sessions")
				sessions.DisconnectAll()
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		return sessions.Serve(gctx)
	})

	if config.AdminEndpoint != "" {
		a := admin.NewServer(st, metrics, sessions, config.LogLevel == "debug")
		g.Go(func() error {
			return a.ListenAndServe(gctx, config.AdminEndpoint)
		})
	}

	if config.JobsDir != "" {
		runner := jobs.NewRunner(st, config.MaxThreads)
		g.Go(func() error {
			if config.Watch {
				return runner.Watch(gctx, config.JobsDir, jobs.DefaultSettle)
			}
			if err := runner.RunDir(gctx, config.JobsDir); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			Logger.Infof("All jobs in %s finished", config.JobsDir)
			return nil
		})
	}

	err = g.Wait()
	Logger.Infof("Shutting down")
	return err
}

// restore loads a backup file into the store
func restore(st store.IStore, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	n, err := st.Restore(f)
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	Logger.Infof("Restored %d pairs from %s", n, path)
	return nil
}
