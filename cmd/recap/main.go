package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/recap/internal/handler"
	appI18n "github.com/pavelanni/recap/internal/i18n"
	"github.com/pavelanni/recap/internal/llm"
	"github.com/pavelanni/recap/internal/model"
	"github.com/pavelanni/recap/internal/store"
)

//go:generate templ generate -path ../../internal/handler/views

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recap",
		Short: "Turn notes, links and images into quizzes with Gemini",
	}

	serve := serveCmd()
	root.AddCommand(serve, quizCmd(), settingsCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `recap --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every command shares.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "recap.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addModelFlags registers the flags that configure the model gateway.
func addModelFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("api-key", "", "Gemini API key (overrides the stored key for this run)")
	f.String("model", "", "Model name (overrides the stored model for this run)")
	f.String("llm-url", llm.DefaultBaseURL, "OpenAI-compatible API base URL")
	f.Duration("llm-timeout", 60*time.Second, "Timeout for one model request (0 disables)")
	f.Float32("temperature", 0.7, "Sampling temperature")
	f.Bool("json-mode", false, "Ask the endpoint for a JSON object response")
	f.IntP("questions", "n", model.DefaultQuestionCount, "Number of questions per quiz")
	f.String("quiz-language", "en", "Language code of generated quizzes")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addModelFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /recap)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("access-password", "", "Password required to use the web UI (or set RECAP_ACCESS_PASSWORD)")
	f.Bool("check", false, "Check the API key against the endpoint before serving")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz history as JSON",
		RunE:  runExport,
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
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

	v.SetEnvPrefix("RECAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("recap")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/recap")
	v.AddConfigPath("/etc/recap")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newGateway builds the model gateway from the stored settings. The api-key
// and model flags override them without being saved.
func newGateway(v *viper.Viper, db *store.Store) (*llm.Gateway, error) {
	st, err := db.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if key := v.GetString("api-key"); key != "" {
		st.APIKey = key
	}
	if name := v.GetString("model"); name != "" {
		if !model.IsAllowedModel(name) {
			return nil, fmt.Errorf("%w: %q", llm.ErrUnknownModel, name)
		}
		st.ModelName = name
	}
	return llm.New(llm.Config{
		APIKey:      st.APIKey,
		Model:       st.ModelName,
		BaseURL:     v.GetString("llm-url"),
		Timeout:     v.GetDuration("llm-timeout"),
		Temperature: float32(v.GetFloat64("temperature")),
		JSONMode:    v.GetBool("json-mode"),
	}), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up auth sessions", "error", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	gw, err := newGateway(v, db)
	if err != nil {
		return fmt.Errorf("create model gateway: %w", err)
	}
	if !gw.IsReady() {
		slog.Warn("no API key configured; set one on the settings page")
	} else if v.GetBool("check") {
		if err := gw.Ping(context.Background()); err != nil {
			return fmt.Errorf("model health check: %w", err)
		}
		slog.Info("model endpoint OK", "url", v.GetString("llm-url"), "model", gw.Model())
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	quizCfg := model.QuizConfig{
		QuestionCount:  v.GetInt("questions"),
		Language:       v.GetString("quiz-language"),
		AccessPassword: v.GetString("access-password"),
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
	}

	h, err := handler.New(db, gw, quizCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", gw.Model(),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"questions", quizCfg.QuestionCount,
		"quiz_language", quizCfg.Language,
		"base_path", basePath,
		"password_protected", quizCfg.AccessPassword != "",
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported history", "results", len(export.Results), "output", outPath)
	return nil
}
