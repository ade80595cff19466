package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/ai"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/cache"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/enrich"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/gateway"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/queue"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scanner"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify the worker's dependencies",
	Long: `Checks that the database and redis can be reached, the analyzer engine
is runnable locally or through docker, the AI explanation service answers,
and the fallback templates and janitor schedule are valid.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	allOK := true
	fail := func(msg string) {
		fmt.Println(failStyle.Render("FAIL") + " (" + msg + ")")
		allOK = false
	}

	fmt.Println(headerStyle.Render("=== devsecwatch doctor ==="))

	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fail(err.Error())
	} else {
		if err := db.Ping(ctx); err != nil {
			fail(err.Error())
		} else {
			fmt.Printf("OK (%s)\n", db.Driver())
		}
		db.Close()
	}

	fmt.Print("Redis .................... ")
	if rc, err := cache.NewClient(ctx, cfg.Redis); err != nil {
		fail(err.Error())
	} else {
		fmt.Printf("OK (%s)\n", cfg.Redis.Addr)
		rc.Close()

		inspector := asynq.NewInspector(queue.RedisOpt(cfg.Redis))
		for _, q := range []string{cfg.Queue.ScanQueue, cfg.Queue.NotificationQueue} {
			fmt.Printf("  queue %-18s ", q)
			info, err := inspector.GetQueueInfo(q)
			if err != nil {
				fmt.Println(dimStyle.Render("empty or not created yet"))
				continue
			}
			fmt.Printf("pending=%d active=%d retry=%d archived=%d\n",
				info.Pending, info.Active, info.Retry, info.Archived)
		}
		inspector.Close()
	}

	fmt.Print("Analyzer ................. ")
	analyzer := scanner.NewAnalyzer(scanner.Options{
		Engine:       scanner.Engine(cfg.Analyzer.Engine),
		BinDir:       cfg.Analyzer.BinDir,
		PreferDocker: cfg.Analyzer.PreferDocker,
		DockerImage:  cfg.Analyzer.DockerImage,
	})
	switch via := analyzer.Available(ctx); via {
	case "":
		fail(analyzer.Name() + " not found; install it or start docker")
	default:
		fmt.Printf("OK (%s via %s)\n", analyzer.Name(), via)
	}

	fmt.Print("Docker ................... ")
	if _, err := exec.LookPath("docker"); err != nil {
		fmt.Println(dimStyle.Render("NOT FOUND (optional when the engine is installed locally)"))
	} else {
		out, err := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}").Output()
		if err != nil {
			fmt.Println(dimStyle.Render("NOT RUNNING (optional)"))
		} else {
			fmt.Printf("OK (v%s)\n", strings.TrimSpace(string(out)))
		}
	}

	fmt.Print("AI explanation service ... ")
	explainer, err := ai.New(cfg.AI)
	switch {
	case err != nil:
		fail(err.Error())
	case cfg.AI.ServiceURL == "":
		fmt.Println(warnStyle.Render("disabled (set ai.service_url; findings will use templates)"))
	case !explainer.IsAvailable(ctx):
		fmt.Println(warnStyle.Render("UNREACHABLE (" + cfg.AI.ServiceURL + "; templates will be used)"))
	default:
		fmt.Printf("OK (%s)\n", cfg.AI.ServiceURL)
	}

	fmt.Print("Fallback templates ....... ")
	if tpl, err := enrich.LoadTemplates(cfg.Enrichment.TemplatesFile); err != nil {
		fail(err.Error())
	} else {
		fmt.Printf("OK (%d types)\n", len(tpl))
	}

	fmt.Print("Janitor schedule ......... ")
	if err := gateway.ValidateSchedule(cfg.Janitor.Schedule); err != nil {
		fail(err.Error())
	} else {
		fmt.Printf("OK (%s, stale after %s)\n", cfg.Janitor.Schedule, cfg.Janitor.StaleAfter)
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed, the worker is ready."))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed, see above."))
	}
	return nil
}
