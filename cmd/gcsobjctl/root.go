package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickml/gcsobject"
	"github.com/patrickml/gcsobject/internal/config"
	"github.com/patrickml/gcsobject/internal/resumestore"
	"github.com/patrickml/gcsobject/internal/transport"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagKeyFile    string
	flagSessionDB  string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// httpClientTimeout bounds metadata/control-plane requests. Transfer
// (get/put) commands use a client with no timeout; large objects on slow
// links are bounded by context cancellation instead.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func transferHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// buildLogger configures an slog.Logger from the config file's log_level,
// overridden by the global verbosity flags.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := configLogLevel(cfg)

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func configLogLevel(cfg *config.Config) slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// loadCLIConfig resolves internal/config's ambient settings, defaulting
// to DefaultConfigPath().
func loadCLIConfig(logger *slog.Logger) (*config.Config, error) {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return config.DefaultConfig(), nil
	}

	return config.LoadOrDefault(path, logger)
}

// newClient loads the config file, builds a gcsobject.Client from a
// service-account key file and the resumable session store, and applies
// the config's transport/upload overrides. The returned cleanup func
// closes the session store.
func newClient(ctx context.Context, httpClient *http.Client) (*gcsobject.Client, *config.Config, func() error, error) {
	cfg, err := loadCLIConfig(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err != nil {
		return nil, nil, nil, err
	}

	logger := buildLogger(cfg)

	keyFile := flagKeyFile
	if keyFile == "" {
		keyFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	if keyFile == "" {
		return nil, nil, nil, fmt.Errorf("no service account key: pass --key-file or set GOOGLE_APPLICATION_CREDENTIALS")
	}

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading service account key %q: %w", keyFile, err)
	}

	creds, err := transport.NewGoogleCredentials(ctx, keyBytes)
	if err != nil {
		return nil, nil, nil, err
	}

	dbPath := flagSessionDB
	if dbPath == "" {
		dbPath = config.DefaultSessionStorePath()
	}

	if dbPath == "" {
		dbPath = ":memory:"
	}

	store, err := resumestore.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	client := gcsobject.NewClient(httpClient, creds, store, logger)
	client.ApplyTuning(gcsobject.Tuning{
		UploadBaseURL:       cfg.UploadBaseURL,
		JSONAPIBaseURL:      cfg.JSONAPIBaseURL,
		MaxRetries:          cfg.MaxRetries,
		ResumableRetryLimit: cfg.ResumableRetryLimit,
		ProbeTimeout:        cfg.ProbeTimeout,
	})

	return client, cfg, store.Close, nil
}

// defaultValidation maps the config file's default_validation value onto a
// ValidationMode, used by commands when no validation flag is given.
func defaultValidation(cfg *config.Config) gcsobject.ValidationMode {
	switch cfg.DefaultValidation {
	case "md5":
		return gcsobject.ValidationMD5Only
	case "crc32c":
		return gcsobject.ValidationCRC32COnly
	case "none":
		return gcsobject.ValidationNone
	default:
		return gcsobject.ValidationBoth
	}
}

// newRootCmd builds the fully-assembled root command with all subcommands
// registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gcsobjctl",
		Short:         "GCS object operations CLI",
		Long:          "A CLI client for gcsobject's single-object download, upload, metadata, and signing operations.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagKeyFile, "key-file", "", "service account JSON key file")
	cmd.PersistentFlags().StringVar(&flagSessionDB, "session-db", "", "resumable session store path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (HTTP requests)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newSignURLCmd())
	cmd.AddCommand(newSignPolicyCmd())

	return cmd
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
