package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quasiboard/internal/config"
	"quasiboard/internal/federation"
	"quasiboard/internal/followers"
	"quasiboard/internal/httpsig"
	"quasiboard/internal/index"
	"quasiboard/internal/keys"
	"quasiboard/internal/ledger"
	"quasiboard/internal/tasks"
)

var rootCmd = &cobra.Command{
	Use:   "quasi-board",
	Short: "Quasi-board federated task coordination server",
	Long: `quasi-board runs a federated ActivityPub task board: an append-only
hash-chained ledger of claims and completions, HTTP Message Signature
verification of inbound activities, a periodic projection of an
external task list onto ActivityPub Notes, and the HTTP/federation
surface tying them together.`,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(indexCmd())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP federation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("config error:", err)
				os.Exit(1)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("serve: creating data dir: %w", err)
	}

	idx, err := index.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("serve: opening index: %w", err)
	}
	defer idx.Close()

	led, err := ledger.Open(filepath.Join(cfg.DataDir, "ledger.jsonl"), idx)
	if err != nil {
		return fmt.Errorf("serve: opening ledger: %w", err)
	}
	defer led.Close()

	if result := led.VerifyChain(); !result.Valid {
		fmt.Printf("ledger corruption detected at entry %d: %s\n", *result.BrokenAt, result.Reason)
		os.Exit(2)
	}

	followerStore, err := followers.Open(filepath.Join(cfg.DataDir, "followers.json"))
	if err != nil {
		return fmt.Errorf("serve: opening follower store: %w", err)
	}

	priv, err := keys.LoadOrGenerate(
		filepath.Join(cfg.DataDir, "private_key.pem"),
		filepath.Join(cfg.DataDir, "public_key.pem"),
	)
	if err != nil {
		return fmt.Errorf("serve: loading actor keypair: %w", err)
	}
	publicKeyPEM, err := keys.PublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("serve: encoding public key: %w", err)
	}

	webhookSecret, err := keys.LoadOrGenerateWebhookSecret(filepath.Join(cfg.DataDir, ".webhook_secret"))
	if err != nil {
		return fmt.Errorf("serve: loading webhook secret: %w", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	fetcher := &federation.KeyFetcher{Client: httpClient}
	keyID := cfg.BoardURL + "/quasi-board#main-key"
	sig := httpsig.Engine(&httpsig.RealEngine{
		PrivateKey: priv,
		Cache:      httpsig.NewKeyCache(),
		Fetcher:    fetcher,
	})

	projector := tasks.NewProjector(cfg.TaskSourceURL, cfg.GithubToken)
	if len(cfg.GenesisTasks) > 0 {
		projector.SetFallback(convertGenesisTasks(cfg.GenesisTasks))
	}

	fedCfg := federation.Config{
		Ledger:            led,
		Tasks:             projector,
		Followers:         followerStore,
		Sig:               sig,
		Fetcher:           fetcher,
		BoardURL:          cfg.BoardURL,
		KeyID:             keyID,
		PublicKeyPEM:      publicKeyPEM,
		WebhookSecret:     webhookSecret,
		PreferredUsername: cfg.Presentation.PreferredUsername,
		HTTPClient:        httpClient,
	}
	handler, err := federation.New(fedCfg)
	if err != nil {
		return fmt.Errorf("serve: building federation server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go projector.Start(runCtx)

	srv := &http.Server{Addr: cfg.BindAddr, Handler: handler}
	go func() {
		<-ctx.Done()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("quasi-board listening on %s (actor %s/quasi-board, signature engine %s)\n", cfg.BindAddr, cfg.BoardURL, sig.Capability())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func convertGenesisTasks(in []config.GenesisTask) []tasks.Record {
	out := make([]tasks.Record, 0, len(in))
	for _, t := range in {
		out = append(out, tasks.Record{ID: t.ID, Title: t.Title, URL: t.URL, Labels: t.Labels})
	}
	return out
}

func ledgerCmd() *cobra.Command {
	ledgerGroup := &cobra.Command{Use: "ledger", Short: "Inspect the ledger"}
	ledgerGroup.AddCommand(ledgerVerifyCmd())
	return ledgerGroup
}

func ledgerVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify chain integrity and report the break point, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("config error:", err)
				os.Exit(1)
			}
			led, err := ledger.Open(filepath.Join(cfg.DataDir, "ledger.jsonl"), nil)
			if err != nil {
				return err
			}
			defer led.Close()
			result := led.VerifyChain()
			if result.Valid {
				fmt.Println("chain OK")
				return nil
			}
			fmt.Printf("chain broken at entry %d: %s\n", *result.BrokenAt, result.Reason)
			os.Exit(2)
			return nil
		},
	}
	return cmd
}

func indexCmd() *cobra.Command {
	indexGroup := &cobra.Command{Use: "index", Short: "Manage the secondary per-task index"}
	indexGroup.AddCommand(indexRebuildCmd())
	return indexGroup
}

// indexRebuildCmd replays the full ledger into a fresh index.db. For
// an operator recovering from a corrupt or deleted index database;
// ledger.jsonl stays the source of truth throughout, so this never
// risks chain data even if interrupted.
func indexRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the secondary index from ledger.jsonl",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("config error:", err)
				os.Exit(1)
			}
			led, err := ledger.Open(filepath.Join(cfg.DataDir, "ledger.jsonl"), nil)
			if err != nil {
				return err
			}
			defer led.Close()

			idx, err := index.Open(cfg.DataDir)
			if err != nil {
				return err
			}
			defer idx.Close()

			entries := led.Entries(0, 0)
			if err := idx.Rebuild(entries); err != nil {
				return fmt.Errorf("index rebuild: %w", err)
			}
			fmt.Printf("rebuilt index from %d entries\n", len(entries))
			return nil
		},
	}
	return cmd
}

func keysCmd() *cobra.Command {
	keysGroup := &cobra.Command{Use: "keys", Short: "Manage the actor's RSA keypair"}
	keysGroup.AddCommand(keysGenerateCmd())
	return keysGroup
}

// keysGenerateCmd unconditionally overwrites the actor keypair.
// LoadOrGenerate (used by serve) never does this on its own; rotation
// is always an explicit operator action.
func keysGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate (or rotate) the actor's RSA keypair and print the public key PEM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("config error:", err)
				os.Exit(1)
			}
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}
			priv, err := keys.Generate(
				filepath.Join(cfg.DataDir, "private_key.pem"),
				filepath.Join(cfg.DataDir, "public_key.pem"),
			)
			if err != nil {
				return err
			}
			pemStr, err := keys.PublicKeyPEM(&priv.PublicKey)
			if err != nil {
				return err
			}
			fmt.Print(pemStr)
			return nil
		},
	}
	return cmd
}
