package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillprobe/skillprobe/internal/agent"
	"github.com/skillprobe/skillprobe/internal/handler"
	appI18n "github.com/skillprobe/skillprobe/internal/i18n"
	"github.com/skillprobe/skillprobe/internal/llm"
	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/scoring"
	"github.com/skillprobe/skillprobe/internal/session"
	"github.com/skillprobe/skillprobe/internal/store"
	"github.com/skillprobe/skillprobe/internal/validate"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skillprobe",
		Short: "Adaptive skill assessment engine powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `skillprobe --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "skillprobe.db", "SQLite database path")
	f.StringSliceP("templates", "t", nil, "Paths to question-template JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", llm.DefaultTimeout, "Per-call LLM timeout")
	f.StringP("lang", "l", "en", "Response language (en, ru)")
	f.Int("max-iterations", agent.DefaultMaxIterations, "Reasoning-loop iteration cap per round")
	f.Duration("tool-timeout", agent.DefaultToolTimeout, "Per-tool-call timeout")
	f.String("admin-password", "", "Initial admin password (or set SKILLPROBE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export assessment results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "skillprobe.db", "SQLite database path")
	f.String("assessment-id", "", "Assessment identifier for output (required)")
	f.String("category", "", "Category name for output (required)")
	f.String("date", "", "Assessment date in YYYY-MM-DD format (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("assessment-id")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SKILLPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("skillprobe")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/skillprobe")
	v.AddConfigPath("/etc/skillprobe")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Import question templates from all specified files.
	if err := loadTemplates(db, v.GetStringSlice("templates")); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetDuration("llm-timeout"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	validator := validate.New(llmClient)
	orchestrator := &agent.Orchestrator{
		Reasoner:      llmClient,
		Registry:      agent.GenerationTools(db, validator),
		MaxIterations: v.GetInt("max-iterations"),
		ToolTimeout:   v.GetDuration("tool-timeout"),
	}

	scorer := scoring.New(llmClient)
	scorer.FallbackText = func(ctx context.Context) string {
		return appI18n.T(ctx, "FallbackExplanation")
	}

	h := handler.New(db, session.NewService(db), scorer, orchestrator)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"max_iterations", v.GetInt("max-iterations"),
		"tool_timeout", v.GetDuration("tool-timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.AssessmentExport{
		AssessmentID: v.GetString("assessment-id"),
		Category:     v.GetString("category"),
		Date:         v.GetString("date"),
		Results:      results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}

// templateImport is the on-disk shape of one question template.
type templateImport struct {
	Text       string   `json:"text"`
	Difficulty int      `json:"difficulty"`
	Category   string   `json:"category"`
	Interests  []string `json:"interests"`
	Keywords   []string `json:"keywords,omitempty"`
}

// loadTemplates imports template files, skipping files whose content hash was
// already imported. A changed file is skipped with a warning so existing
// sessions keep their question sources stable.
func loadTemplates(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("template file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("template file changed since last import, skipping to keep existing sessions stable",
				"path", path)
			continue
		}

		var templates []templateImport
		if err := json.Unmarshal(data, &templates); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, ti := range templates {
			_, err := db.InsertTemplate(model.QuestionTemplate{
				Text:       ti.Text,
				Difficulty: ti.Difficulty,
				Category:   ti.Category,
				Interests:  ti.Interests,
			})
			if err != nil {
				return fmt.Errorf("insert template from %s: %w", path, err)
			}
			if len(ti.Keywords) > 0 {
				if err := db.SetDifficultyKeywords(ti.Difficulty, ti.Category, ti.Keywords); err != nil {
					return fmt.Errorf("store keywords from %s: %w", path, err)
				}
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported templates", "path", path, "count", len(templates))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or SKILLPROBE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
