package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voiceui/internal/app"
	"voiceui/internal/config"
	"voiceui/internal/domain"
	"voiceui/internal/engine"
	"voiceui/internal/locator"
	"voiceui/internal/mcp"
	"voiceui/internal/planner"
	"voiceui/internal/server"
	"voiceui/internal/surface"
	"voiceui/internal/surface/browser"
	"voiceui/internal/surface/dom"
	voiceuisdk "voiceui/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "voiceui",
	Short: "Voice UI command resolution",
	Long: `voiceui turns spoken commands into actions on a web page.
- Inventory: the visible interactive elements of a page, each with a stable locator.
- Static path: phrases declared in data-voice / data-voice-intents pick an element and a declared action.
- AI path: an external planner turns the command plus the inventory into a step plan, executed in order.
- Outcome: every command ends in one record (command, result, status, path) sent to the journal, the
  websocket stream and the log.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VOICEUI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file (defaults when empty)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "emit JSON logs instead of console output")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json-logs", rootCmd.PersistentFlags().Lookup("json-logs"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(inventoryCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(outcomesCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			logger := newLogger()
			a, err := app.New(cfg, logger, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			policy := server.NewPolicy(cfg)
			handler, err := server.New(server.Config{
				App:      a,
				Policy:   policy,
				BasePath: cfg.Server.BasePath,
				Auth:     server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, Logger: logger.With().Str("component", "auth").Logger()},
				Logger:   logger.With().Str("component", "http").Logger(),
			})
			if err != nil {
				return err
			}
			go a.Run(ctx)
			server.StartWebhooks(ctx, a.Journal, cfg.Webhooks, logger.With().Str("component", "webhooks").Logger())
			if path := viper.GetString("config"); path != "" {
				w := config.Watcher{
					Path:   path,
					Logger: logger.With().Str("component", "config").Logger(),
					OnChange: func(next *config.Config) {
						policy.Update(next)
						logger.Info().Str("path", path).Msg("rate limits and origins reloaded")
					},
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						logger.Error().Err(err).Msg("config watcher stopped")
					}
				}()
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(sctx)
			}()
			logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("base_path", cfg.Server.BasePath).
				Bool("planner", a.Engine.Pipeline.Planner != nil).
				Bool("transcriber", a.Engine.Transcriber != nil).
				Msg("serving voice API (OpenAPI at /openapi.json, Swagger UI at /docs)")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

func runCmd() *cobra.Command {
	var htmlPath, mode, plannerURL string
	var printHTML bool
	cmd := &cobra.Command{
		Use:   "run [utterance]",
		Short: "Resolve one utterance against an HTML file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := engine.ParseMode(mode)
			if err != nil {
				return err
			}
			doc, err := loadDocument(htmlPath)
			if err != nil {
				return err
			}
			return withApp(plannerURL, func(a *app.App) error {
				o := a.EngineFor("cli").HandleTranscript(cmd.Context(), doc, strings.Join(args, " "), m)
				if err := printOutcome(o); err != nil {
					return err
				}
				if printHTML {
					a.Highlights.Flush()
					out, err := doc.Render()
					if err != nil {
						return err
					}
					fmt.Println(out)
				}
				if !o.Succeeded() {
					return fmt.Errorf("command failed: %s", o.Result)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML file to load (required)")
	cmd.Flags().StringVar(&mode, "mode", "auto", "resolution mode (static|ai|auto)")
	cmd.Flags().StringVar(&plannerURL, "planner-url", "", "plan through another voiceui server instead of the configured planner")
	cmd.Flags().BoolVar(&printHTML, "print-html", false, "print the page after the command ran")
	_ = cmd.MarkFlagRequired("html")
	return cmd
}

func inventoryCmd() *cobra.Command {
	var htmlPath, pageURL string
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List the visible interactive elements of a page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (htmlPath == "") == (pageURL == "") {
				return errors.New("exactly one of --html or --url is required")
			}
			ctx := cmd.Context()
			var s surface.Surface
			if htmlPath != "" {
				doc, err := loadDocument(htmlPath)
				if err != nil {
					return err
				}
				s = doc
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				b, err := browser.Connect(ctx, cfg.Browser.ControlURL, cfg.Browser.Headless)
				if err != nil {
					return err
				}
				defer b.Close()
				page, err := b.Open(ctx, pageURL)
				if err != nil {
					return err
				}
				defer page.Close()
				s = page
			}
			items, err := locator.Discover(ctx, s)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Locator", "Tag", "Type", "Text", "Voice", "Action"})
			for _, it := range items {
				tw.AppendRow(table.Row{it.Locator, it.Tag, it.Type, it.Text, it.Voice, it.VoiceAction})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML file to load")
	cmd.Flags().StringVar(&pageURL, "url", "", "page to open in Chrome")
	return cmd
}

func mcpCmd() *cobra.Command {
	var htmlPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve an HTML page as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(htmlPath)
			if err != nil {
				return err
			}
			return withApp("", func(a *app.App) error {
				s, err := mcp.New(mcp.Config{Engine: a.EngineFor("mcp"), Surface: doc, Logger: a.Logger})
				if err != nil {
					return err
				}
				return s.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "HTML file to load (required)")
	_ = cmd.MarkFlagRequired("html")
	return cmd
}

func outcomesCmd() *cobra.Command {
	var serverURL, token, path, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Tail the outcome journal of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := voiceuisdk.New(serverURL)
			c.BearerToken = token
			items, err := c.Outcomes(cmd.Context(), limit, path, status)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"At", "Path", "Status", "Command", "Result"})
			for _, o := range items {
				tw.AppendRow(table.Row{o.At.Format(time.RFC3339), o.ProcessingType, o.Status, o.Command, o.Result})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "voiceui server URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of outcomes")
	cmd.Flags().StringVar(&path, "path", "", "path filter (static|ai|error)")
	cmd.Flags().StringVar(&status, "status", "", "status filter (success|error|pending)")
	_ = viper.BindPFlag("token", cmd.Flags().Lookup("token"))
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config given by --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("log-level")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if viper.GetBool("json-logs") {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// withApp builds an app for one-shot commands. The journal stays in memory
// unless the config names a file.
func withApp(plannerURL string, fn func(*app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var opts app.Options
	if plannerURL != "" {
		client := voiceuisdk.New(plannerURL)
		client.BearerToken = viper.GetString("token")
		opts.Planner = planner.Remote{Client: client}
	}
	a, err := app.New(cfg, newLogger(), opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func loadDocument(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dom.Parse(f)
}

func printOutcome(o domain.Outcome) error {
	if viper.GetBool("json") {
		return printJSON(o)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"Command", o.Command})
	tw.AppendRow(table.Row{"Path", o.Path})
	tw.AppendRow(table.Row{"Status", o.Status})
	tw.AppendRow(table.Row{"Result", o.Result})
	if o.Matched != "" {
		tw.AppendRow(table.Row{"Matched", o.Matched})
	}
	if o.Plan != nil {
		tw.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", o.Plan.Confidence)})
		tw.AppendRow(table.Row{"Reasoning", o.Plan.Reasoning})
	}
	for _, s := range o.Steps {
		mark := "ok"
		if !s.OK {
			mark = "failed"
		}
		tw.AppendRow(table.Row{fmt.Sprintf("Step %d", s.Index+1), fmt.Sprintf("%s %s %s (%s)", s.Step.Kind, s.Step.Target, s.Step.Value, mark)})
	}
	if o.Err != nil {
		tw.AppendRow(table.Row{"Error", o.Err.Error()})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
