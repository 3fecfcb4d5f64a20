// Command gateway boots the privileged-request pipeline service: the
// Vault, Parser Ensemble, Voting Engine, Comparator, Approval Gate,
// Trusted Intent Generator, Execution Dispatcher, and Ledger, wired
// together by the orchestrator and exposed over HTTP.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentryforge/gateway/pkg/approval"
	"github.com/sentryforge/gateway/pkg/crypto"
	"github.com/sentryforge/gateway/pkg/dispatcher"
	"github.com/sentryforge/gateway/pkg/health"
	"github.com/sentryforge/gateway/pkg/ledgerstore"
	"github.com/sentryforge/gateway/pkg/llm"
	"github.com/sentryforge/gateway/pkg/orchestrator"
	"github.com/sentryforge/gateway/pkg/parser"
	"github.com/sentryforge/gateway/pkg/policy"
	"github.com/sentryforge/gateway/pkg/schema"
	"github.com/sentryforge/gateway/pkg/trustedintent"
	"github.com/sentryforge/gateway/pkg/vault"
	"github.com/sentryforge/gateway/pkg/voting"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.Default()
	ctx := context.Background()

	ledger, closeLedger, err := setupLedger(ctx)
	if err != nil {
		log.Fatalf("gateway: ledger setup failed: %v", err)
	}
	defer closeLedger()

	ring, err := loadSigningRing()
	if err != nil {
		log.Fatalf("gateway: signing key setup failed: %v", err)
	}

	sentryClient := llmClientFromEnv("SENTRY_MODEL_ENDPOINT")
	parserClient := llmClientFromEnv("PARSER_MODEL_ENDPOINT")
	mathClient := llmClientFromEnv("MATH_MODEL_ENDPOINT")

	monitor := health.NewMonitor(health.DefaultConfig())
	v := vault.New([]*vault.Sentry{
		{ID: "sentry-1", Client: sentryClient},
		{ID: "sentry-2", Client: sentryClient},
		{ID: "sentry-3", Client: sentryClient},
	}, monitor, vault.DefaultConfig())

	ensemble := parser.New([]*parser.Parser{
		{ID: "parser-1", Client: parserClient, TrustLevel: 1.0},
		{ID: "parser-2", Client: parserClient, TrustLevel: 1.0},
		{ID: "parser-3", Client: parserClient, TrustLevel: 1.0},
	}, parser.DefaultConfig(), logger)

	comparator, err := policy.NewComparator()
	if err != nil {
		log.Fatalf("gateway: comparator setup failed: %v", err)
	}

	gate := approval.New(approval.Config{}, approval.LogNotifier{Logger: logger})

	d := dispatcher.New(ring)
	d.Register(schema.ActionMathQuestion, dispatcher.MathQuestionHandler{Client: mathClient})

	bundleLoader, err := policy.NewBundleLoader(os.Getenv("POLICY_BUNDLE_DIR"), "")
	if err != nil {
		log.Fatalf("gateway: policy bundle loader setup failed: %v", err)
	}
	activePolicy := func() policy.Policy {
		if b := bundleLoader.Active(); b != nil {
			return b.Policy
		}
		return policy.Default()
	}

	orch := &orchestrator.Orchestrator{
		Vault:      v,
		Parsers:    ensemble,
		Comparator: comparator,
		Approval:   gate,
		Generator:  trustedintent.New(ring),
		Dispatcher: d,
		Ledger:     ledger,
		Policy:     activePolicy,
		VotingConf: voting.DefaultConfig(),
		Logger:     logger,
	}

	srv := newServer(orch, monitor, bundleLoader, ledger, logger)
	httpSrv := &http.Server{Addr: listenAddr(), Handler: srv, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("gateway listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown error", "error", err)
		return 1
	}
	return 0
}

func listenAddr() string {
	if addr := os.Getenv("GATEWAY_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func setupLedger(ctx context.Context) (ledgerstore.Store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return ledgerstore.NewMemoryStore(), func() {}, nil
	}

	dialect := ledgerstore.DialectPostgres
	driver := "postgres"
	if os.Getenv("DATABASE_DRIVER") == "sqlite" {
		dialect = ledgerstore.DialectSQLite
		driver = "sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	store := ledgerstore.NewSQLStore(db, dialect)
	if err := store.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return store, func() { _ = db.Close() }, nil
}

func loadSigningRing() (*crypto.SigningRing, error) {
	keyHex := os.Getenv("SIGNING_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("SIGNING_KEY is not set")
	}
	signer, err := crypto.NewHMACSigner("primary", []byte(keyHex))
	if err != nil {
		return nil, fmt.Errorf("construct signer: %w", err)
	}
	ring := crypto.NewSigningRing()
	ring.AddKey("primary", signer)
	return ring, nil
}

func llmClientFromEnv(envVar string) llm.Client {
	endpoint := os.Getenv(envVar)
	return httpLLMClient{endpoint: endpoint}
}

// httpLLMClient is a minimal placeholder satisfying llm.Client until a
// concrete provider integration is wired; a real deployment replaces this
// with the production chat-completions client.
type httpLLMClient struct {
	endpoint string
}

func (c httpLLMClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, options *llm.SamplingOptions) (*llm.Response, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("no model endpoint configured")
	}
	return nil, fmt.Errorf("httpLLMClient: not yet implemented for endpoint %s", c.endpoint)
}

func newServer(orch *orchestrator.Orchestrator, monitor *health.Monitor, bundleLoader *policy.BundleLoader, ledger ledgerstore.Store, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/admin/sentries/quarantine", func(w http.ResponseWriter, r *http.Request) {
		handleSentryAction(w, r, monitor.Quarantine)
	})
	mux.HandleFunc("/admin/sentries/release", func(w http.ResponseWriter, r *http.Request) {
		handleSentryAction(w, r, monitor.Release)
	})

	mux.HandleFunc("/admin/policy/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			BundlePath string `json:"bundle_path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := bundleLoader.LoadFile(req.BundlePath); err != nil {
			logger.Error("policy reload failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/admin/ledger/verify", func(w http.ResponseWriter, r *http.Request) {
		valid, err := ledger.VerifyChain(r.Context())
		resp := map[string]any{"valid": valid}
		if err != nil {
			resp["error"] = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/v1/process", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			UserInput string `json:"user_input"`
			UserID    string `json:"user_id"`
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result := orch.ProcessRequest(r.Context(), req.UserInput, req.UserID, req.SessionID)
		writeResult(w, logger, result)
	})

	mux.HandleFunc("/v1/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ApprovalID string `json:"approval_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result := orch.Resume(r.Context(), req.ApprovalID)
		writeResult(w, logger, result)
	})

	return mux
}

func handleSentryAction(w http.ResponseWriter, r *http.Request, action func(string)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		SentryID string `json:"sentry_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SentryID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	action(req.SentryID)
	w.WriteHeader(http.StatusOK)
}

func writeResult(w http.ResponseWriter, logger *slog.Logger, result orchestrator.Result) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{"outcome": result.Outcome, "ledger_id": result.LedgerID}
	if result.ApprovalID != "" {
		body["approval_id"] = result.ApprovalID
	}
	if result.Processing != nil {
		body["result"] = result.Processing
	}
	if result.Err != nil {
		body["error"] = result.Err.Error()
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("gateway: failed to encode response", "error", err)
	}
}
