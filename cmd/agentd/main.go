// Command agentd is the long-running daemon: it loads configuration, wires the stores,
// dedup service, queue, and dispatcher described in spec.md, registers the Plan and
// Execute job handlers, and runs until terminated. Grounded on the teacher's
// cmd/orchestrator/main.go (flag-parsed config path, signal-driven shutdown,
// construct-then-Start-then-wait-for-signal shape).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"

	"github.com/opencopilot/agentcore/internal/audit"
	"github.com/opencopilot/agentcore/internal/clock"
	"github.com/opencopilot/agentcore/internal/cmdrunner"
	"github.com/opencopilot/agentcore/internal/config"
	"github.com/opencopilot/agentcore/internal/controlplane"
	"github.com/opencopilot/agentcore/internal/dedup"
	"github.com/opencopilot/agentcore/internal/dispatcher"
	"github.com/opencopilot/agentcore/internal/executehandler"
	"github.com/opencopilot/agentcore/internal/fileeditor"
	"github.com/opencopilot/agentcore/internal/instructions"
	"github.com/opencopilot/agentcore/internal/jobstatus"
	"github.com/opencopilot/agentcore/internal/lm"
	"github.com/opencopilot/agentcore/internal/planhandler"
	"github.com/opencopilot/agentcore/internal/progress"
	"github.com/opencopilot/agentcore/internal/queue"
	"github.com/opencopilot/agentcore/internal/repoanalyzer"
	"github.com/opencopilot/agentcore/internal/sandbox"
	"github.com/opencopilot/agentcore/internal/task"
	"github.com/opencopilot/agentcore/pkg/agentmodel"
)

// queueCapacity bounds the in-memory job queue per priority level (spec §4.7: "bounded
// FIFO"). Not exposed as a config option — spec §6 enumerates only the dispatcher knobs
// listed in BackgroundJobConfig.
const queueCapacity = 256

// dedupTTLSlack is added on top of the configured job timeout so a live job's dedup claim
// never lapses mid-run (internal/dispatcher.New's doc comment).
const dedupTTLSlack = 2 * time.Minute

func main() {
	configPath := flag.String("config", "agentd.yaml", "path to the daemon's YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] agentd: failed to load config path=%s err=%v", *configPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, cp, err := wire(ctx, cfg)
	if err != nil {
		log.Fatalf("[ERROR] agentd: failed to wire daemon err=%v", err)
	}
	_ = cp // reserved for an in-process agentctl session sharing this daemon (see internal/controlplane)

	d.Start(ctx)
	log.Printf("[INFO] agentd: started max_concurrency=%d durable=%v", cfg.BackgroundJob.MaxConcurrency, cfg.UsesDurableStorage())

	<-ctx.Done()
	log.Printf("[INFO] agentd: shutdown signal received, draining workers")
	d.Wait()
	log.Printf("[INFO] agentd: stopped")
}

// wire constructs every collaborator spec.md names and returns the dispatcher (ready to
// Start) alongside a ControlPlane sharing the same stores, matching SPEC_FULL.md §12's
// "agentctl...against a ControlPlane struct shared with agentd."
func wire(ctx context.Context, cfg *config.Config) (*dispatcher.Dispatcher, *controlplane.ControlPlane, error) {
	clk := clock.Real{}

	taskStore, jobStatusStore, auditStore, err := openStores(cfg)
	if err != nil {
		return nil, nil, err
	}

	dedupSvc := dedup.NewMemoryService(clk)
	q := queue.NewQueue(queueCapacity)
	dedupTTL := cfg.BackgroundJob.JobTimeout.Duration() + dedupTTLSlack
	disp := dispatcher.New(q, dedupSvc, jobStatusStore, clk, cfg.BackgroundJob.MaxConcurrency, dedupTTL)

	runner := cmdrunner.New()
	driver := sandbox.NewCLIDriver(runner, "")
	sandboxMgr := sandbox.NewManager(driver)

	sweepOrphanContainers(ctx)

	// Out-of-scope collaborators (spec §1, §6): forge, LM, and the LM-driven file editor
	// are named interfaces only. A real deployment replaces these three values with
	// concrete adapters; see cmd/agentd/unimplemented.go for why agentd still links and
	// starts without them.
	var f unconfiguredForge
	var planner lm.Planner = unconfiguredPlanner{}
	var editor fileeditor.FileEditor = unconfiguredFileEditor{}

	analyzer := repoanalyzer.NewSimpleAnalyzer(f)
	instr := instructions.NewLoader(f)
	reporter := progress.NewForgeReporter(f)

	planH := planhandler.NewHandler(f, planner, analyzer, instr, taskStore, auditStore, disp, clk)
	execH := executehandler.NewHandler(f, sandboxMgr, editor, taskStore, auditStore, reporter, clk)

	disp.RegisterHandler(agentmodel.JobTypePlan, planH.Handle)
	disp.RegisterHandler(agentmodel.JobTypeExecute, execH.Handle)

	go runRetentionSweep(ctx, auditStore, cfg.Audit.Retention.Duration())

	cp := controlplane.New(disp, taskStore, jobStatusStore, auditStore)
	return disp, cp, nil
}

// openStores selects in-memory or SQLite-backed stores per spec §6: an empty
// DatabaseConnection means every store (Task, JobStatus, Audit) runs entirely in-memory.
func openStores(cfg *config.Config) (task.Store, jobstatus.Store, audit.Store, error) {
	if !cfg.UsesDurableStorage() {
		clk := clock.Real{}
		return task.NewMemoryStore(), jobstatus.NewMemoryStore(), audit.NewMemoryStore(clk), nil
	}

	taskStore, err := task.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, nil, err
	}
	jobStatusStore, err := jobstatus.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, nil, err
	}
	auditStore, err := audit.OpenSQLiteStore(cfg.DatabaseConnection)
	if err != nil {
		return nil, nil, nil, err
	}
	return taskStore, jobStatusStore, auditStore, nil
}

// sweepOrphanContainers removes sandbox containers left behind by a crashed prior process
// (SPEC_FULL.md §12). Best-effort: a daemon running without Docker reachable (e.g. local
// development) logs and continues rather than refusing to start.
func sweepOrphanContainers(ctx context.Context) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		log.Printf("[WARN] agentd: docker client unavailable, skipping orphan sweep err=%v", err)
		return
	}
	defer cli.Close()

	janitor := sandbox.NewJanitor(cli)
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// No containers are tracked as live yet at startup (this process hasn't created any),
	// so every managed-label container found is, by definition, an orphan of a prior run.
	removed, err := janitor.SweepOrphans(sweepCtx, map[string]bool{})
	if err != nil {
		log.Printf("[WARN] agentd: orphan container sweep failed err=%v", err)
		return
	}
	if removed > 0 {
		log.Printf("[INFO] agentd: orphan container sweep removed=%d", removed)
	}
}

// runRetentionSweep enforces Audit.Retention on a ticker for the lifetime of ctx
// (SPEC_FULL.md §12), rather than only pruning on an operator's on-demand agentctl call.
func runRetentionSweep(ctx context.Context, auditStore audit.Store, retention time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := auditStore.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Printf("[WARN] agentd: audit retention sweep failed err=%v", err)
				continue
			}
			if removed > 0 {
				log.Printf("[INFO] agentd: audit retention sweep removed=%d", removed)
			}
		}
	}
}
