// Command orchestrator is the admin-facing entry point that boots every
// process-wide singleton the lifecycle engine needs (spec §9: "lift to
// explicit process-wide singletons created at boot") and drives it from
// the command line, grounded on the teacher's internal/cli root command
// tree (persistent flags feeding a shared logger/context, one cobra
// subcommand per operator action) — rebuilt against this orchestrator's
// own subcommands instead of rescale-int's job/file ones.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale-labs/taskorc/internal/config"
	"github.com/rescale-labs/taskorc/internal/dispatcher"
	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/drivers/driveapi"
	"github.com/rescale-labs/taskorc/internal/drivers/filehost"
	"github.com/rescale-labs/taskorc/internal/drivers/httpmulti"
	"github.com/rescale-labs/taskorc/internal/drivers/linkresolver"
	"github.com/rescale-labs/taskorc/internal/drivers/syncdaemon"
	"github.com/rescale-labs/taskorc/internal/drivers/torrent"
	"github.com/rescale-labs/taskorc/internal/drivers/usenet"
	"github.com/rescale-labs/taskorc/internal/events"
	"github.com/rescale-labs/taskorc/internal/lifecycle"
	"github.com/rescale-labs/taskorc/internal/logging"
	"github.com/rescale-labs/taskorc/internal/merge"
	"github.com/rescale-labs/taskorc/internal/models"
	"github.com/rescale-labs/taskorc/internal/notify"
	"github.com/rescale-labs/taskorc/internal/persistence"
	"github.com/rescale-labs/taskorc/internal/pipeline"
	"github.com/rescale-labs/taskorc/internal/progress"
	"github.com/rescale-labs/taskorc/internal/queue"
	"github.com/rescale-labs/taskorc/internal/registry"
	"github.com/rescale-labs/taskorc/internal/rss"
	"github.com/rescale-labs/taskorc/internal/workdir"
)

var (
	cfgFile  string
	dataDir  string
	logLevel string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Runs and inspects the multi-source download/process/upload task engine",
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the orchestrator's INI config file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Working-directory root for in-flight task payloads")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")

	root.AddCommand(newServeCmd(), newSubmitCmd(), newJournalCmd(), newMergeCmd())
	return root
}

// process bundles every singleton an Engine needs, assembled once per
// invocation from cfg (spec §9 explicit-singleton boot pattern).
type process struct {
	cfg    *config.Config
	bus    *events.EventBus
	log    *logging.Logger
	status *registry.Registry
	q      *queue.Controller
	base   *workdir.Base
	engine *lifecycle.Engine
	store  *persistence.Store
}

func boot() (*process, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(logLevel); err == nil {
		logging.SetGlobalLevel(lvl)
	}

	bus := events.NewEventBus(256)
	log := logging.NewLogger("worker", bus)

	base, err := workdir.NewBase(dataDir)
	if err != nil {
		return nil, fmt.Errorf("prepare working directory: %w", err)
	}

	store, err := persistence.Open(strings.TrimPrefix(cfg.DatabaseURL, "bolt://"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	reg := drivers.NewRegistry()
	reg.Register(httpmulti.New())

	if td, err := torrent.New(torrent.Config{DataDir: dataDir}); err != nil {
		log.Warn().Err(err).Msg("torrent driver disabled")
	} else {
		reg.Register(td)
	}

	reg.Register(usenet.New(usenet.Config{
		BaseURL: os.Getenv("SABNZBD_URL"),
		APIKey:  os.Getenv("SABNZBD_API_KEY"),
	}))
	reg.Register(linkresolver.New(linkresolver.Config{
		BaseURL:  os.Getenv("JDOWNLOADER_URL"),
		Username: os.Getenv("JDOWNLOADER_USER"),
		Password: os.Getenv("JDOWNLOADER_PASS"),
	}))
	reg.Register(driveapi.New(driveapi.Config{
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		AzureAccountURL:    os.Getenv("AZURE_ACCOUNT_URL"),
		AzureAccountKey:    os.Getenv("AZURE_ACCOUNT_KEY"),
	}))
	reg.Register(syncdaemon.New(syncdaemon.Config{
		BinaryPath: "rclone",
		ConfigPath: os.Getenv("RCLONE_CONFIG"),
	}))

	fh := filehost.New(filehost.Config{
		Provider: filehost.ProviderGofile,
		Token:    os.Getenv("GOFILE_TOKEN"),
		FolderID: cfg.GdriveID,
	})
	sinks := map[string]drivers.Sink{fh.Name(): fh}

	status := registry.New()
	q := queue.NewController(cfg.DownloadLimit, cfg.UploadLimit, cfg.QueueAll)
	pl := pipeline.New()

	engine := lifecycle.New(reg, sinks, q, status, base, pl, bus, log)
	engine.Journal = store
	engine.Notifier = cliNotifier{log: log}

	return &process{
		cfg: cfg, bus: bus, log: log, status: status, q: q, base: base,
		engine: engine, store: store,
	}, nil
}

func (p *process) Close() {
	_ = p.store.Close()
}

// cliNotifier satisfies lifecycle.Notifier for the admin CLI: a log line
// plus, for the failure case, a desktop alert (spec §7 Fatal handling
// extended to every terminal failure here, since there's no chat surface
// attached to relay it instead).
type cliNotifier struct {
	log *logging.Logger
}

func (n cliNotifier) NotifyComplete(cfg models.TaskConfig, result models.UploadResult) {
	n.log.Info().Str("task", cfg.ID).Str("link", result.Link).Msg("task finalized")
}

func (n cliNotifier) NotifyFailed(cfg models.TaskConfig, err error) {
	n.log.Error().Str("task", cfg.ID).Err(err).Msg("task failed")
	notify.Fatal("Task failed", fmt.Sprintf("%s: %v", cfg.ID, err))
}

func (n cliNotifier) NotifyCancelled(cfg models.TaskConfig) {
	n.log.Warn().Str("task", cfg.ID).Msg("task cancelled")
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Boot the engine, replay the incomplete-task journal, and run the RSS poller until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := boot()
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if p.cfg.IncompleteTaskNotifier {
				p.replayJournal()
			}

			poller := rss.New(p.store, nil, p.dispatchRSS, time.Duration(p.cfg.RssDelaySeconds)*time.Second, p.log)
			go poller.Run(ctx)

			p.log.Info().Msg("orchestrator serving; press ctrl-c to stop")
			<-ctx.Done()
			p.log.Info().Msg("shutting down")
			p.q.StopAll()
			return nil
		},
	}
}

// replayJournal logs a warning for every task the store still has open at
// startup; the rows are reported, not resubmitted.
func (p *process) replayJournal() {
	rows, err := p.store.IncompleteTasks()
	if err != nil {
		p.log.Error().Err(err).Msg("journal replay: list")
		return
	}
	for _, row := range rows {
		p.log.Warn().Str("task", row.TaskID).Str("link", row.Link).Msg("journal: incomplete task found at startup, not auto-resubmitted")
	}
}

// dispatchRSS is the rss.Dispatch implementation wired into the poller:
// every feed hit re-enters the engine through the same TaskConfig path a
// chat command would (SPEC_FULL SUPPLEMENT 5).
func (p *process) dispatchRSS(owner int64, link, title, tag string) error {
	driverName, err := dispatcher.ResolveDriverName(link)
	if err != nil {
		return err
	}
	cfg := &models.TaskConfig{
		Kind:       models.KindLeech,
		OwnerID:    owner,
		Link:       link,
		DriverName: driverName,
		Tag:        tag,
		NameHint:   title,
		CreatedAt:  time.Now(),
	}
	_, err = p.engine.Submit(cfg)
	return err
}

func newSubmitCmd() *cobra.Command {
	var ownerID int64
	cmd := &cobra.Command{
		Use:   "submit <command line>",
		Short: "Parse one chat-style command line and run it to completion in-process",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := boot()
			if err != nil {
				return err
			}
			defer p.Close()

			line := strings.Join(args, " ")
			parsed, err := dispatcher.ParseCommand(line, "")
			if err != nil {
				return fmt.Errorf("parse command: %w", err)
			}
			cfg, err := dispatcher.ToTaskConfig(parsed, ownerID, ownerID, 0, dispatcher.ResolveDriverName)
			if err != nil {
				return fmt.Errorf("build task: %w", err)
			}
			cfg.CreatedAt = time.Now()

			taskID, err := p.engine.Submit(cfg)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}

			bar := progress.NewBar(cfg.NameHint)
			defer bar.Finish()
			for {
				entry, ok := p.status.Get(taskID)
				if !ok {
					break
				}
				bar.Update(entry)
				time.Sleep(500 * time.Millisecond)
			}
			fmt.Printf("task %s submitted\n", taskID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owner id the task is submitted on behalf of")
	return cmd
}

func newJournalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "List tasks the persistence journal still considers in-flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := persistence.Open(strings.TrimPrefix(dbPathFromConfig(), "bolt://"))
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.IncompleteTasks()
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("journal is empty")
				return nil
			}
			for _, row := range rows {
				fmt.Printf("%s\tchat=%d\towner=%d\tlink=%s\ttag=%s\tcreated=%s\n",
					row.TaskID, row.ChatID, row.OwnerID, row.Link, row.Tag, row.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

// newMergeCmd exercises the merge session state machine end to end in one
// shot (spec §4.6: start -> add* -> commit), since a one-shot CLI process
// can't hold the owner-scoped session open across separate invocations the
// way the chat surface's long-lived process does. The command prints the
// resulting Plan and stops there; neither the lifecycle engine nor the
// pipeline consumes a Plan (JoinStage only reassembles numbered archive
// parts).
func newMergeCmd() *cobra.Command {
	var owner int64
	var urls []string
	var output string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Run one merge session (start, add each --url, commit) and print the resulting plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(urls) < 2 {
				return fmt.Errorf("merge requires at least 2 --url inputs")
			}
			mgr := merge.New()
			if _, err := mgr.Start(owner, models.MessageRef{ChatID: owner}); err != nil {
				return err
			}
			for _, u := range urls {
				if _, err := mgr.Add(owner, models.MergeInput{Kind: models.MergeInputURL, URL: u, DisplayName: u}); err != nil {
					return fmt.Errorf("add %s: %w", u, err)
				}
			}
			_, plan, err := mgr.Commit(owner, models.MergeOptions{OutputName: output})
			if err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			name := plan.Opts.OutputName
			if name == "" {
				name = "(detected once sub-downloads complete)"
			}
			fmt.Printf("merge plan: %d inputs -> %s\n", len(plan.Inputs), name)
			for _, in := range plan.Inputs {
				fmt.Printf("  - %s\n", in.DisplayName)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner id the session runs under")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "Merge input URL (repeatable, at least 2 required)")
	cmd.Flags().StringVar(&output, "output", "", "Override the pattern-detected output name")
	return cmd
}

func dbPathFromConfig() string {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Default().DatabaseURL
	}
	return cfg.DatabaseURL
}
