package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/batsim/infra/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot store commands",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the latest stored snapshot of every battery",
	RunE:  runSnapshotShow,
}

func init() {
	snapshotCmd.AddCommand(snapshotShowCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Snapshot.Enabled() {
		return fmt.Errorf("snapshot.path is not configured")
	}
	st, err := snapshot.NewJSONLStore(cfg.Snapshot)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			if _, ferr := fmt.Fprintf(cmd.ErrOrStderr(), "error while closing store: %v\n", err); ferr != nil {
				fmt.Println("failed to write to stderr:", ferr)
			}
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := st.LatestAll(ctx)
	if err != nil {
		return err
	}
	return writeSnapshots(cmd.OutOrStdout(), records)
}

func writeSnapshots(out io.Writer, records map[string]snapshot.Record) error {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tRUN\tSIM TIME\tCHARGE\tLIFE\tSAVED")
	for _, id := range ids {
		r := records[id]
		fmt.Fprintf(w, "%s\t%s\t%.2fs\t%.1f%%\t%.1f%%\t%s\n",
			id, r.RunID, r.SimTime, r.Snapshot.Charge*100, r.Snapshot.Wear*100, r.Time.Format(time.RFC3339))
	}
	return w.Flush()
}
