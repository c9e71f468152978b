// Command compass is the headless chat front end: an interactive REPL
// over the turn orchestrator, plus utility subcommands for inspecting
// configured models and threads.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/config"
	"github.com/compass-ai-chat/compass-sub000/internal/embedding"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
	"github.com/compass-ai-chat/compass-sub000/internal/notify"
	"github.com/compass-ai-chat/compass-sub000/internal/pipeline"
	"github.com/compass-ai-chat/compass-sub000/internal/provider"
	"github.com/compass-ai-chat/compass-sub000/internal/store"
	"github.com/compass-ai-chat/compass-sub000/internal/turn"
	"github.com/compass-ai-chat/compass-sub000/internal/web"
)

var (
	configPath string
	verbose    bool
	modelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "compass",
	Short: "compass - streaming LLM chat with a message transform pipeline",
	Long: `compass streams chat completions from OpenAI-compatible and Gemini
backends through a transform pipeline: template variables, document
grounding, URL content extraction, relevant-passage retrieval and
optional web search enrich every turn before it reaches the model.

Run without arguments to start the interactive chat loop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models served by every configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		registry := provider.NewRegistry(cfg.Providers)
		catalog := provider.NewCatalog(nil)
		catalog.Refresh(cmd.Context(), registry, providerIDs(cfg))
		for _, m := range catalog.Models() {
			fmt.Printf("%s/%s\t%s\n", m.Provider.ID, m.ID, m.Name)
		}
		return nil
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List stored threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		db, err := store.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer db.Close()
		threads, err := db.ListThreads(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range threads {
			fmt.Printf("%s\t%s\t(%d messages)\n", t.ID, t.Title, len(t.Messages))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "model as <provider-id>/<model-id>")
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(threadsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runChat(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Debug && !verbose {
		if err := logging.Init(true); err != nil {
			return err
		}
	}

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	registry := provider.NewRegistry(cfg.Providers)
	catalog := provider.NewCatalog(nil)
	catalog.Refresh(ctx, registry, providerIDs(cfg))

	stopWatch, err := config.Watch(configPath, func(next *config.Config) {
		registry.UpdateConfigs(next.Providers)
		logging.L(logging.ComponentConfig).Info("configuration reloaded")
	})
	if err == nil {
		defer stopWatch()
	}

	model, err := resolveModel(cfg, catalog)
	if err != nil {
		return err
	}

	opts := turn.Options{
		Registry:      registry,
		Catalog:       catalog,
		Dispatch:      db,
		Notifier:      notify.LogNotifier{},
		Documents:     db,
		Fetcher:       web.NewHTTPFetcher(),
		SearchEnabled: cfg.Search.Enabled && cfg.Search.Endpoint != "",
		UserName:      cfg.User.Name,
		UpdateDelay:   cfg.UpdateDelay(),
	}
	if cfg.Embedding.Backend != "" && cfg.Embedding.Backend != "provider" {
		embedder, err := embedding.NewEmbedder(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to build embedding backend: %w", err)
		}
		opts.EmbedderFor = func(provider.ChatProvider) embedding.Embedder { return embedder }
	}
	if opts.SearchEnabled {
		search := web.NewSearchClient(cfg.Search.Endpoint, cfg.Search.APIKey)
		opts.Search = func(ctx context.Context, query string) (pipeline.SearchResponse, error) {
			hits, err := search.Search(ctx, query)
			if err != nil {
				return pipeline.SearchResponse{}, err
			}
			results := make([]pipeline.SearchResult, len(hits))
			for i, h := range hits {
				results[i] = pipeline.SearchResult{Content: h.Content, URL: h.URL, Title: h.Title}
			}
			return pipeline.SearchResponse{Results: results}, nil
		}
	}
	orch := turn.NewOrchestrator(opts)
	orch.SetThread(chat.NewThread(nil, model), false)

	fmt.Printf("compass ready, chatting with %s/%s. Type /quit to exit, /new for a fresh thread.\n",
		model.Provider.ID, model.ID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			if _, err := orch.AddNewThread(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			continue
		}

		if err := orch.Send(ctx, line, nil); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		if t, ok := orch.CurrentThread(); ok && len(t.Messages) > 0 {
			fmt.Println(t.Messages[len(t.Messages)-1].Content)
		}
	}
	return scanner.Err()
}

// resolveModel picks the model for the session: the --model flag, then
// the configured default, then the first catalog entry.
func resolveModel(cfg *config.Config, catalog *provider.Catalog) (*chat.Model, error) {
	selector := modelFlag
	if selector == "" {
		selector = cfg.DefaultModel
	}
	models := catalog.Models()
	if selector != "" {
		providerID, modelID, ok := strings.Cut(selector, "/")
		if !ok {
			return nil, fmt.Errorf("invalid model %q, want <provider-id>/<model-id>", selector)
		}
		for _, m := range models {
			if m.ID == modelID && m.Provider.ID == providerID {
				return &m, nil
			}
		}
		// Not listed by the backend; trust the selector and let a
		// model-not-found response prune it later.
		for _, p := range cfg.Providers {
			if p.ID == providerID {
				return &chat.Model{ID: modelID, Name: modelID, Provider: p}, nil
			}
		}
		return nil, fmt.Errorf("unknown provider %q in model %q", providerID, selector)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available, check provider configuration")
	}
	return &models[0], nil
}

func providerIDs(cfg *config.Config) []string {
	ids := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		ids[i] = p.ID
	}
	return ids
}
