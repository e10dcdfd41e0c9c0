// Command orbit runs an agent session against a provider from the terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/substratelabs/orbit/agent"
	"github.com/substratelabs/orbit/llm"
	"github.com/substratelabs/orbit/store"
)

var (
	flagProvider string
	flagModel    string
	flagConfig   string
	flagScope    string
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:          "orbit",
		Short:        "Agent runtime over OpenAI, Anthropic, and Gemini",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(modelsCmd(), runCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildClient registers every provider whose credentials are present in the
// environment.
func buildClient() (*llm.Client, error) {
	var opts []llm.ClientOption

	if os.Getenv("OPENAI_API_KEY") != "" {
		adapter, err := llm.NewOpenAIAdapter()
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithProvider("openai", adapter))
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		adapter, err := llm.NewAnthropicAdapter()
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithProvider("anthropic", adapter))
	}
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		adapter, err := llm.NewGeminiAdapter()
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithProvider("gemini", adapter))
	}

	client := llm.NewClient(opts...)
	if len(client.Providers()) == 0 {
		return nil, fmt.Errorf("no provider credentials found; set OPENAI_API_KEY, ANTHROPIC_API_KEY, or GEMINI_API_KEY")
	}
	return client, nil
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			models := llm.CatalogModels(flagProvider)
			if client, err := buildClient(); err == nil {
				if live := client.ListModels(cmd.Context()); len(live) > 0 {
					models = live
				}
			}

			for _, m := range models {
				if flagProvider != "" && m.Provider != flagProvider {
					continue
				}
				fmt.Printf("%-12s %-28s ctx=%d\n", m.Provider, m.ID, m.ContextWindow)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagProvider, "provider", "p", "", "filter by provider")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "Run an agent session; reads stdin when no input argument is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			cfg := agent.DefaultSessionConfig()
			if flagConfig != "" {
				loaded, err := agent.LoadSessionConfig(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if flagProvider != "" {
				cfg.Provider = flagProvider
			}
			if flagModel != "" {
				cfg.Model = flagModel
			}
			if flagScope != "" {
				cfg.ScopeDir = flagScope
			}
			if cfg.Provider == "" {
				cfg.Provider = "anthropic"
			}
			if cfg.Model == "" {
				catalog := llm.CatalogModels(cfg.Provider)
				if len(catalog) == 0 {
					return fmt.Errorf("no default model known for provider %q", cfg.Provider)
				}
				cfg.Model = catalog[0].ID
			}

			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			profile := agent.NewProviderProfile(cfg.Provider, cfg.Model)
			env := agent.NewLocalExecutionEnvironment("")

			session, err := agent.NewSession(client, profile, env, cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			if cfg.StorePath != "" {
				db, err := store.OpenSQLite(cfg.StorePath)
				if err != nil {
					return err
				}
				defer db.Close()
				session.SetRecorder(db)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(cfg.MCPServers) > 0 {
				for _, summary := range session.ConnectExternalServers(ctx) {
					slog.Info("external tools registered",
						"server", summary.ServerID, "tools", len(summary.RegisteredTools))
				}
			}

			go printEvents(session.Events())

			if len(args) > 0 {
				return session.Submit(ctx, strings.Join(args, " "))
			}
			return runInteractive(ctx, session)
		},
	}
	cmd.Flags().StringVarP(&flagProvider, "provider", "p", "", "provider to use")
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "model to use")
	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "session config file (YAML)")
	cmd.Flags().StringVar(&flagScope, "scope", "", "confine tool access to this directory")
	return cmd
}

func runInteractive(ctx context.Context, session *agent.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Print("> ")
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			fmt.Print("> ")
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		if err := session.Submit(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if session.State() == agent.StateClosed {
				return err
			}
		}
		fmt.Print("\n> ")
	}
	return scanner.Err()
}

func printEvents(events <-chan agent.SessionEvent) {
	for event := range events {
		switch event.Kind {
		case agent.EventAssistantTextDelta:
			if delta, ok := event.Data["delta"].(string); ok {
				fmt.Print(delta)
			}
		case agent.EventAssistantTextEnd:
			fmt.Println()
		case agent.EventToolCallStart:
			fmt.Printf("\n[tool] %v\n", event.Data["tool_name"])
		case agent.EventWarning, agent.EventLoopDetection:
			fmt.Fprintf(os.Stderr, "[warn] %v\n", event.Data["message"])
		case agent.EventError:
			fmt.Fprintf(os.Stderr, "[error] %v\n", event.Data["error"])
		}
	}
}
