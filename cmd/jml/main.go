package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"jml/internal/adapter"
	"jml/internal/config"
	"jml/internal/directory"
	"jml/internal/domain"
	"jml/internal/engine"
	"jml/internal/events"
	"jml/internal/identity"
	"jml/internal/notify"
	"jml/internal/server"
	"jml/internal/store"
	"jml/internal/ticket"
)

var rootCmd = &cobra.Command{
	Use:   "jml",
	Short: "Employee offboarding automation",
	Long: `jml automates employee terminations across downstream services.

Runs are dry-run by default: the plan is printed and nothing is touched.
Production runs need --live together with the configured confirmation
phrase. Every run is recorded in the workspace database ('jml runs').`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JML")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(terminateCmd())
	rootCmd.AddCommand(phasesCmd())
	rootCmd.AddCommand(adaptersCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func terminateCmd() *cobra.Command {
	var live bool
	var confirm, user, manager, phasesCSV string
	cmd := &cobra.Command{
		Use:   "terminate [ticket-id ...]",
		Short: "Run a termination for one or more tickets, or for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := domain.DryRun
			if live {
				mode = domain.Production
			}
			var phases []string
			if phasesCSV != "" {
				for _, p := range strings.Split(phasesCSV, ",") {
					if p = strings.TrimSpace(p); p != "" {
						phases = append(phases, p)
					}
				}
			}
			if user == "" && len(args) == 0 {
				return fmt.Errorf("provide ticket ids or --user")
			}
			if user != "" && len(args) > 0 {
				return fmt.Errorf("--user and ticket ids are mutually exclusive")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if user != "" {
					res, err := e.Terminate(ctx, engine.Request{
						Identity:     domain.Identity{Email: user, ManagerEmail: manager},
						Mode:         mode,
						Phases:       phases,
						Confirmation: confirm,
					})
					if err != nil {
						return err
					}
					return printRun(res)
				}
				if len(args) == 1 {
					raw, err := e.Tickets.FetchTicket(ctx, args[0])
					if err != nil {
						return err
					}
					parsed := ticket.Parse(raw, e.Config.Org.Domain)
					if parsed.ID == "" {
						parsed.ID = args[0]
					}
					id, warnings, err := e.Resolver.Resolve(ctx, parsed)
					if err != nil {
						return err
					}
					res, err := e.Terminate(ctx, engine.Request{
						TicketID:     args[0],
						Identity:     id,
						Mode:         mode,
						Phases:       phases,
						Confirmation: confirm,
						Warnings:     warnings,
					})
					if err != nil {
						return err
					}
					return printRun(res)
				}
				batch, err := e.TerminateBatch(ctx, engine.BatchRequest{
					TicketIDs:    args,
					Mode:         mode,
					Phases:       phases,
					Confirmation: confirm,
				})
				if err != nil {
					return err
				}
				return printBatch(batch)
			})
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "execute for real instead of printing the plan")
	cmd.Flags().StringVar(&confirm, "confirm", "", "confirmation phrase for --live")
	cmd.Flags().StringVar(&user, "user", "", "terminate this email directly instead of a ticket")
	cmd.Flags().StringVar(&manager, "manager", "", "manager email for data transfer (with --user)")
	cmd.Flags().StringVar(&phasesCSV, "phases", "", "comma-separated subset of phases")
	return cmd
}

func phasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "Show the configured phase ordering",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			specs := append([]domain.PhaseSpec(nil), cfg.Phases...)
			sort.Slice(specs, func(i, j int) bool { return specs[i].Order < specs[j].Order })
			if viper.GetBool("json") {
				return printJSON(specs)
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"#", "PHASE", "GATED ON GROUP", "TRANSFERS DATA"})
			for i, p := range specs {
				t.AppendRow(table.Row{i + 1, p.Name, p.Group, p.TransfersData})
			}
			t.Render()
			return nil
		},
	}
}

func adaptersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "adapters", Short: "Inspect service adapters"}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Test connectivity to every service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				results := e.TestConnectivity(ctx)
				names := make([]string, 0, len(results))
				for name := range results {
					names = append(names, name)
				}
				sort.Strings(names)
				if viper.GetBool("json") {
					out := map[string]string{}
					for _, name := range names {
						if err := results[name]; err != nil {
							out[name] = err.Error()
						} else {
							out[name] = "ok"
						}
					}
					return printJSON(out)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"PHASE", "STATUS"})
				failed := false
				for _, name := range names {
					status := "ok"
					if err := results[name]; err != nil {
						status = err.Error()
						failed = true
					}
					t.AppendRow(table.Row{name, status})
				}
				t.Render()
				if failed {
					return fmt.Errorf("one or more adapters failed connectivity")
				}
				return nil
			})
		},
	})
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "runs", Short: "Inspect recorded runs"}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r store.Repo) error {
				runs, err := r.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"RUN", "TICKET", "EMAIL", "MODE", "OK", "STARTED", "SECONDS"})
				for _, run := range runs {
					t.AppendRow(table.Row{run.ID, run.TicketID, run.Email, run.Mode, run.OverallSuccess, run.StartedAt, fmt.Sprintf("%.1f", run.DurationSeconds)})
				}
				t.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "n", 50, "number of runs")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r store.Repo) error {
				run, err := r.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printRun(run)
			})
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	var orgDomain string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default jml.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgDomain)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&orgDomain, "domain", "example.com", "org email domain")
	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate jml.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := config.Load(workspace); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the run history HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("JML_JWT_SECRET")}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving runs API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if authCfg.JWTSecret == "" {
					fmt.Println("warning: JML_JWT_SECRET not set; API is unauthenticated")
				}
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("example.com")
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	workspace := viper.GetString("workspace")
	conn, err := store.Open(store.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := store.Migrate(conn); err != nil {
		return err
	}

	dir := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Token)
	e := engine.New(cfg, buildRegistry(cfg, dir))
	e.Store = store.Repo{DB: conn}
	e.Tickets = ticket.NewClient(cfg.Tickets.BaseURL, cfg.Tickets.Token)
	e.Resolver = identity.New(dir)
	if cfg.Notify.WebhookURL != "" {
		e.Notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}
	e.Sink = events.Fanout{
		events.Writer{DB: conn},
		events.SinkFunc(printProgress),
	}
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, store.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := store.Open(store.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := store.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, store.Repo{DB: conn})
}

// buildRegistry wires one adapter per configured phase. The identity
// phase drives the directory; everything else is a stub until its
// service integration lands. Group-gated phases get the membership
// check wrapper.
func buildRegistry(cfg *config.Config, dir directory.Service) *adapter.Registry {
	reg := adapter.NewRegistry()
	for _, spec := range cfg.Phases {
		var a adapter.Adapter
		if spec.Name == "identity" {
			a = adapter.NewDirectoryAdapter(spec.Name, dir)
		} else {
			a = adapter.NewStub(spec.Name)
		}
		reg.Register(adapter.Gate(a, spec.Group, dir))
	}
	return reg
}

func printProgress(ctx context.Context, e events.Event) {
	if viper.GetBool("json") {
		return
	}
	switch e.Status {
	case domain.ProgressPlanned:
		fmt.Printf("  plan  %-12s %s\n", e.Phase, e.Message)
	case domain.ProgressStarting:
		fmt.Printf("  run   %-12s\n", e.Phase)
	default:
		fmt.Printf("  %-5s %-12s %s\n", e.Status, e.Phase, e.Message)
	}
}

func printRun(res *domain.TerminationResult) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	fmt.Printf("\nrun %s  %s  mode=%s\n", res.RunID, res.Identity.Email, res.Mode)
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"PHASE", "STATUS", "DETAIL"})
	for _, name := range res.PhaseOrder {
		pr := res.PhaseResults[name]
		detail := pr.Message
		if pr.Error != "" {
			detail = pr.Error
		}
		t.AppendRow(table.Row{name, pr.Status, detail})
	}
	t.Render()
	for _, w := range res.Warnings {
		fmt.Println("warning:", w)
	}
	if res.Mode == domain.DryRun {
		fmt.Println("dry run: nothing was changed")
	} else if res.OverallSuccess {
		fmt.Println("completed successfully")
	} else {
		fmt.Println("completed with failures:")
		for _, e := range res.Errors {
			fmt.Println("  -", e)
		}
	}
	return nil
}

func printBatch(batch *domain.BatchResult) error {
	if viper.GetBool("json") {
		return printJSON(batch)
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"TICKET", "EMAIL", "OK", "ERRORS"})
	for _, id := range batch.TicketOrder {
		res := batch.TicketResults[id]
		t.AppendRow(table.Row{id, res.Identity.Email, res.OverallSuccess, strings.Join(res.Errors, "; ")})
	}
	t.Render()
	fmt.Printf("%d/%d tickets succeeded (%.1f%%) in %.1fs\n",
		batch.SuccessfulTickets, batch.TotalTickets, batch.SuccessRate, batch.DurationSeconds)
	if batch.Interrupted {
		fmt.Println("interrupted: remaining tickets were not processed")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
