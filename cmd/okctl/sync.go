package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openkaarten-service/internal/domain"
)

func newSyncCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [ID...]",
		Short: "Синхронизировать датасеты",
		Long:  "Без аргументов синхронизирует все датасеты по расписанию, иначе только указанные.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid dataset id %q", arg)
				}
				ids = append(ids, id)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.Close()

			var runs []*domain.ImportRun
			if len(ids) == 0 {
				runs, err = a.importUC.SyncScheduled(ctx)
				if err != nil {
					return err
				}
			} else {
				for _, id := range ids {
					run, err := a.importUC.Sync(ctx, id, domain.TriggerManual)
					if run == nil {
						return err
					}
					runs = append(runs, run)
				}
			}

			printRuns(cmd.OutOrStdout(), runs)
			for _, run := range runs {
				if run.State == domain.ImportFailed {
					return fmt.Errorf("some datasets failed to sync")
				}
			}
			return nil
		},
	}
}

func printRuns(w io.Writer, runs []*domain.ImportRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSTATE\tFEATURES\tERROR")
	for _, run := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", run.DatasetID, run.State, run.FeatureCount, run.Error)
	}
	_ = tw.Flush()
}
