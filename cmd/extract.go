package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andes-analytics/lme-etl/internal/etl"
)

var (
	extractFrom string
	extractTo   string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run one extraction over a date range and wait for it to finish",
	Long:  "Plays the role of the external scheduler: submits an extraction task for the given range (default: the last 7 days) and polls its status until it reaches a terminal state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req := etl.Request{StartDate: extractFrom, EndDate: extractTo}
		if req.EndDate == "" {
			req.EndDate = time.Now().Format("2006-01-02")
		}
		if req.StartDate == "" {
			req.StartDate = time.Now().AddDate(0, 0, -7).Format("2006-01-02")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		doc, err := env.Service.Start(ctx, req)
		if err != nil {
			return err
		}
		taskID := doc.Detail.TaskID
		zap.L().Info("extraction submitted",
			zap.String("task_id", taskID),
			zap.String("from", req.StartDate), zap.String("to", req.EndDate))

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			doc, err := env.Service.Status(ctx, taskID)
			if err != nil {
				return err
			}
			if doc == nil {
				return eris.Errorf("task %s disappeared from status store", taskID)
			}

			fmt.Printf("status=%s records=%d\n", doc.Status, doc.Detail.RecordsCopied)

			if doc.Status.Terminal() {
				if doc.Status == etl.PhaseError {
					return eris.Errorf("extraction failed (code %d): %s",
						doc.Detail.ErrorCode, doc.Detail.ErrorMessage)
				}
				fmt.Printf("done: %d records\n", doc.Detail.RecordsCopied)
				return nil
			}
		}
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFrom, "from", "", "range start date YYYY-MM-DD (default: 7 days ago)")
	extractCmd.Flags().StringVar(&extractTo, "to", "", "range end date YYYY-MM-DD (default: today)")
	rootCmd.AddCommand(extractCmd)
}
