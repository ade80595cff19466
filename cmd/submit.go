package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/queue"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/repository"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scans"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

var (
	submitUser    string
	submitBranch  string
	submitNoProbe bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <repo-url>",
	Short: "Create a scan job and publish it to the queue",
	Long: `Creates a QUEUED scan job for the given repository and publishes the
job message once the row is committed.

By default the repository is probed first (reference listing only, nothing is
cloned) so typos fail here instead of in the worker.

Examples:
  devsecwatch submit https://github.com/org/repo --user alice
  devsecwatch submit https://gitlab.com/org/repo --branch develop --user bob`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitUser, "user", "", "username that owns the job (required)")
	submitCmd.Flags().StringVar(&submitBranch, "branch", models.DefaultBranch, "branch to scan")
	submitCmd.Flags().BoolVar(&submitNoProbe, "no-probe", false, "skip the remote reachability check")
	_ = submitCmd.MarkFlagRequired("user")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repoURL := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !submitNoProbe {
		probeCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		err := repository.NewFetcher(cfg.Workspace.Root, cfg.Workspace.CloneTimeout, cfg.Workspace.GitToken).
			Probe(probeCtx, repoURL, submitBranch)
		cancel()
		if err != nil {
			return fmt.Errorf("repository check failed: %w", err)
		}
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	job := &models.ScanJob{
		RepoURL:       repoURL,
		Branch:        submitBranch,
		CorrelationID: uuid.NewString(),
		SubmittedAt:   time.Now().UTC(),
	}
	err = db.InTx(ctx, func(q database.Querier) error {
		uid, err := scans.EnsureUser(ctx, q, submitUser)
		if err != nil {
			return err
		}
		job.UserID = uid
		return scans.Create(ctx, q, job)
	})
	if err != nil {
		return err
	}

	client := asynq.NewClient(queue.RedisOpt(cfg.Redis))
	defer client.Close()

	sent, err := queue.NewPublisher(client, cfg.Queue).Publish(ctx, queue.Message{
		ScanID:        job.ID,
		UserID:        job.UserID,
		RepoURL:       job.RepoURL,
		Branch:        job.Branch,
		CorrelationID: job.CorrelationID,
		SubmittedAt:   job.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("scan job %d was created but could not be published: %w", job.ID, err)
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("Scan #%d queued for %s (%s)",
		job.ID, repository.DisplayName(repoURL), job.Branch)))
	fmt.Println(dimStyle.Render("  correlation id: " + sent.CorrelationID))
	return nil
}
