package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/techmap/internal/costfile"
	"github.com/sells-group/techmap/internal/publish"
	"github.com/sells-group/techmap/internal/resilience"
	"github.com/sells-group/techmap/internal/store"
)

var publishCmd = &cobra.Command{
	Use:   "publish <run-id>",
	Short: "Replace the Postgres cost table with a recorded run's output",
	Long:  "Loads the output file of a successful run from the run history and replaces the contents of the publish table with it in one transaction.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "publish")
		}
		if run.Result == nil || !run.Status.Publishable() {
			return eris.Wrapf(publish.ErrNotPublishable, "publish: run %s has status %s", run.ID, run.Status)
		}
		if run.Result.OutputPath == "" {
			return eris.Errorf("publish: run %s recorded no output file", run.ID)
		}

		ioOpts, err := costfileOptions()
		if err != nil {
			return err
		}
		ds, err := costfile.Read(ctx, run.Result.OutputPath, ioOpts)
		if err != nil {
			return err
		}
		if len(ds.Records) != run.Result.OutputRows {
			return eris.Errorf("publish: %s has %d rows, run %s wrote %d",
				run.Result.OutputPath, len(ds.Records), run.ID, run.Result.OutputRows)
		}

		table, _ := cmd.Flags().GetString("table")
		pub, closeFn, err := openPublisher(ctx, table)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := pub.EnsureTable(ctx); err != nil {
			return err
		}
		n, err := pub.Publish(ctx, run.ID, run.Status, ds.Records)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Published %d rows from run %s to %s\n", n, run.ID, pub.Table())
		return nil
	},
}

func init() {
	publishCmd.Flags().String("table", "", "target table (default publish.table)")
	rootCmd.AddCommand(publishCmd)
}

// openPublisher connects to the publish database. The returned func closes
// the pool.
func openPublisher(ctx context.Context, table string) (*publish.Publisher, func(), error) {
	url := cfg.PublishURL()
	if url == "" {
		return nil, nil, eris.New("publish: no database configured (set publish.database_url)")
	}
	if table == "" {
		table = cfg.Publish.Table
	}

	pool, err := store.OpenPool(ctx, url, &store.PoolConfig{MaxConns: 2, MinConns: 1})
	if err != nil {
		return nil, nil, err
	}

	r := cfg.Publish.Retry
	retry := resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
	return publish.New(pool, publish.WithTable(table), publish.WithRetry(retry)), pool.Close, nil
}
