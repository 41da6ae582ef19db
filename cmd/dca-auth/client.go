package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	dcaauth "github.com/opengovern/dca-auth-go"
	"github.com/opengovern/dca-auth-go/storage"
)

var (
	apiURL          string
	apiKey          string
	debug           bool
	credentialsPath string
	redisAddr       string
	redisKey        string
)

const passphraseEnv = "DCA_AUTH_PASSPHRASE"

// closers holds resources opened for the running command. closeResources
// releases them once cobra finishes executing.
var closers []io.Closer

func closeResources() {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to release resource", slog.String("error", err.Error()))
		}
	}
	closers = nil
}

func registerGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&apiURL, "api-url", "", "API base URL (overrides DCA_AUTH_API_URL)")
	flags.StringVar(&apiKey, "api-key", "", "API key sent as X-API-Key (overrides DCA_AUTH_API_KEY)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&credentialsPath, "credentials", defaultCredentialsPath(), "Encrypted credentials file")
	flags.StringVar(&redisAddr, "redis-addr", "", "Keep credentials in Redis at this address instead of a file")
	flags.StringVar(&redisKey, "redis-key", "dca-auth:credentials", "Redis hash holding the credentials")
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dca-auth-credentials.json"
	}
	return filepath.Join(dir, "dca-auth", "credentials.json")
}

// newClient builds a Client from the environment, the global flags and the
// selected credential storage.
func newClient(mutate ...func(*dcaauth.Config)) (*dcaauth.Client, error) {
	cfg, err := dcaauth.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if debug {
		cfg.Debug = true
	}

	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := openStorage(cfg.Logger)
	if err != nil {
		return nil, err
	}
	cfg.Storage = store

	for _, fn := range mutate {
		fn(&cfg)
	}
	return dcaauth.New(cfg)
}

func openStorage(logger *slog.Logger) (storage.Storage, error) {
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		closers = append(closers, rdb)
		return storage.NewRedisStorage(rdb, storage.WithRedisKey(redisKey)), nil
	}

	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		logger.Warn("no passphrase set, credentials will not be persisted", slog.String("env", passphraseEnv))
		return storage.NewMemoryStorage(), nil
	}
	fs, err := storage.NewFileStorage(credentialsPath, passphrase)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
