package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/techstock"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduled Qiita import in a loop",
		Long: `Deliver the scheduled fetchQiita event on a timer, the way the cloud
scheduler does in production. Designed for running inside a container or as a
background service. Handles SIGINT/SIGTERM for graceful shutdown (finishes the
current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			log.Printf("techstock daemon: starting with interval %s", interval)

			ev := techstock.Event{Source: techstock.EventSourceScheduler, Action: techstock.EventActionFetchQiita}
			cycle := 1
			for {
				start := time.Now()
				log.Printf("techstock daemon: cycle %d starting", cycle)

				// The cycle runs detached so a signal lets the import finish.
				resp, err := engine.HandleEvent(context.WithoutCancel(ctx), ev)
				switch {
				case err != nil:
					log.Printf("techstock daemon: cycle %d error: %v", cycle, err)
				case !resp.Success:
					log.Printf("techstock daemon: cycle %d failed: %s", cycle, resp.Message)
				default:
					log.Printf("techstock daemon: cycle %d completed in %s: total=%d new=%d saved=%d",
						cycle, time.Since(start).Round(time.Millisecond), resp.Data.Total, resp.Data.New, resp.Data.Saved)
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					timer.Stop()
					log.Println("techstock daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Hour, "duration between import cycles (e.g. 30m, 1h)")
	return cmd
}
