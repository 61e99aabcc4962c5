package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/relationship-crm/internal/company"
	"github.com/sells-group/relationship-crm/internal/jobs"
)

var (
	enrichOwner    string
	enrichForce    bool
	enrichFull     bool
	enrichInterval time.Duration
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run enrichment from the command line",
}

var enrichContactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Enrich an owner's contacts and wait for the run to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrichOwner == "" {
			return eris.New("--owner is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "enrichment")
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := runContacts(ctx, env.Registry, enrichOwner, enrichForce, enrichInterval)
		if err != nil {
			return err
		}
		if job.Status == jobs.StatusError {
			return eris.Errorf("enrichment failed: %s", job.Progress.ErrorMessage)
		}
		return nil
	},
}

var enrichCompanyCmd = &cobra.Command{
	Use:   "company <domain>",
	Short: "Refresh one company by domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "enrichment")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Companies.Upsert(ctx, args[0], company.UpsertOptions{Force: enrichForce, Full: enrichFull})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal company")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// runContacts starts a run for owner, logs progress every interval and
// returns the terminal job. Cancelling ctx stops the run.
func runContacts(ctx context.Context, reg *jobs.Registry, owner string, force bool, interval time.Duration) (*jobs.Job, error) {
	bg := context.WithoutCancel(ctx)

	job, err := reg.Start(bg, owner, jobs.StartOptions{Force: force})
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		return job, eris.Errorf("owner %s already has a running enrichment (run %s)", owner, job.RunID)
	}
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		reg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			return reg.Progress(bg, owner)
		case <-ctx.Done():
			zap.L().Info("interrupted, stopping enrichment", zap.String("owner_id", owner))
			if _, _, err := reg.Stop(bg, owner); err != nil {
				return nil, err
			}
			<-done
			return reg.Progress(bg, owner)
		case <-ticker.C:
			if j, err := reg.Progress(bg, owner); err == nil && j != nil {
				zap.L().Info("enrichment progress",
					zap.Int("total", j.Progress.Total),
					zap.Int("enriched", j.Progress.Enriched),
					zap.Int("skipped", j.Progress.Skipped),
					zap.Int("errors", j.Progress.Errors),
				)
			}
		}
	}
}

func init() {
	enrichContactsCmd.Flags().StringVar(&enrichOwner, "owner", "", "owner id whose contacts to enrich")
	enrichContactsCmd.Flags().BoolVar(&enrichForce, "force", false, "re-enrich contacts and companies that were already enriched")
	enrichContactsCmd.Flags().DurationVar(&enrichInterval, "interval", 2*time.Second, "progress log interval")

	enrichCompanyCmd.Flags().BoolVar(&enrichForce, "force", false, "refresh even if the company is already enriched")
	enrichCompanyCmd.Flags().BoolVar(&enrichFull, "full", true, "use the full organization lookup")

	enrichCmd.AddCommand(enrichContactsCmd, enrichCompanyCmd)
	rootCmd.AddCommand(enrichCmd)
}
