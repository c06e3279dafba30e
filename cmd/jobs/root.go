package jobs

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/kvs/cmd/util"
	"github.com/ValentinKolb/kvs/lib/jobs"
	"github.com/ValentinKolb/kvs/lib/store/lstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// JobsCmd runs the job files of a directory against a new store
	JobsCmd = &cobra.Command{
		Use:   "jobs [dir]",
		Short: "Run all job files of a directory",
		Long: `Run every *.job file of a directory against a new in-memory store and write
the output of each job to <name>.out. Backups are written to <name>-<n>.bck.

` + jobs.HelpText,
		Args:    cobra.ExactArgs(1),
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupStoreFlags(JobsCmd)

	key := "max-threads"
	JobsCmd.Flags().Int(key, 4, cmdUtil.WrapString("Number of job files processed at the same time"))

	key = "watch"
	JobsCmd.Flags().Bool(key, false, cmdUtil.WrapString("Keep running and process job files created later"))
}

func run(_ *cobra.Command, args []string) error {
	dir := args[0]

	st, err := lstore.NewLocalStore(cmdUtil.GetStoreConfig())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := jobs.NewRunner(st, viper.GetInt("max-threads"))
	if viper.GetBool("watch") {
		err = runner.Watch(ctx, dir, jobs.DefaultSettle)
	} else {
		err = runner.RunDir(ctx, dir)
	}

	// waits for pending backups
	if closeErr := st.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Printf("All jobs in %s finished\n", dir)
	return nil
}
