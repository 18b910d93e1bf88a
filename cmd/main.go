package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/config"
	"selector-agent/internal/engine"
	"selector-agent/internal/flow"
	"selector-agent/internal/llm"
	"selector-agent/internal/logging"
	"selector-agent/internal/recovery"
	"selector-agent/internal/selector"
)

func main() {
	site := flag.String("site", "https://www.amazon.com", "site to run against")
	query := flag.String("query", "wireless earbuds", "product search query")
	pages := flag.Int("pages", 3, "maximum review pages to harvest")
	login := flag.Bool("login", true, "sign in before searching")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run owns the browser lifetime; exiting through it instead of
	// log.Fatal keeps the deferred Close on every failure path.
	if err := run(ctx, cfg, log, *site, *query, *pages, *login); err != nil {
		log.Error("run failed", zap.Error(err))
		stop()
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, site, query string, pages int, login bool) error {
	var creds flow.Credentials
	if login {
		var err error
		creds, err = readCredentials()
		if err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}
	}

	drv, err := browser.NewController(browser.Options{Headless: cfg.Headless}, log)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer drv.Close()

	eng := buildEngine(cfg, drv, log)

	f := flow.New(eng, drv, log, flow.Options{
		SiteURL:        site,
		Query:          query,
		Credentials:    creds,
		MaxReviewPages: pages,
		ResultsDir:     cfg.ResultsDir,
	})

	reviews, err := f.Run(ctx)
	if err != nil {
		return fmt.Errorf("flow: %w", err)
	}

	log.Info("flow complete", zap.Int("reviews", len(reviews)))
	stats := eng.RecoveryStats()
	log.Info("recovery summary",
		zap.Int("attempts", stats.TotalAttempts),
		zap.Int("successes", stats.Successes),
		zap.Int("failures", stats.Failures))
	return nil
}

func buildEngine(cfg *config.Config, drv browser.Driver, log *zap.Logger) *engine.Engine {
	clients := buildClients(cfg)

	classifier := selector.NewClassifier(clients, log,
		cfg.ClassifyBatchSize, cfg.ConcurrentPerModel, cfg.InterBatchDelay)
	resolver := selector.NewResolver(clients[0], log, cfg.ResolveBatchSize)
	store := selector.NewStore(cfg.CacheDir, log)
	exec := action.NewExecutor(drv, log, cfg.StrictPostConditions)
	recov := recovery.NewController(drv, clients[0], log)

	return engine.New(engine.Deps{
		Driver:     drv,
		Classifier: classifier,
		Resolver:   resolver,
		Store:      store,
		Executor:   exec,
		Recovery:   recov,
		Log:        log,
		MaxRetries: cfg.MaxRetries,
	})
}

// buildClients pairs each configured endpoint with a model name, reusing the
// last name when fewer names than endpoints are given.
func buildClients(cfg *config.Config) []llm.Chatter {
	opts := llm.Options{
		APIKey:      cfg.ModelAPIKey,
		Timeout:     cfg.ModelTimeout,
		MaxTokens:   cfg.ModelMaxTokens,
		Temperature: cfg.ModelTemperature,
	}

	clients := make([]llm.Chatter, 0, len(cfg.ModelEndpoints))
	for i, endpoint := range cfg.ModelEndpoints {
		name := cfg.ModelNames[len(cfg.ModelNames)-1]
		if i < len(cfg.ModelNames) {
			name = cfg.ModelNames[i]
		}
		clients = append(clients, llm.NewClient(endpoint, name, opts))
	}
	return clients
}

// readCredentials takes the account from the environment when set, and
// prompts otherwise. The password prompt never echoes.
func readCredentials() (flow.Credentials, error) {
	creds := flow.Credentials{
		Username: os.Getenv("AGENT_USERNAME"),
		Password: os.Getenv("AGENT_PASSWORD"),
	}
	if creds.Username != "" && creds.Password != "" {
		return creds, nil
	}

	reader := bufio.NewReader(os.Stdin)
	if creds.Username == "" {
		fmt.Print("Username (email): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return creds, err
		}
		creds.Username = strings.TrimSpace(line)
	}
	if creds.Password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return creds, err
		}
		creds.Password = string(raw)
	}
	return creds, nil
}
