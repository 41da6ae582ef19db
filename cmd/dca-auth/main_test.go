package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcaauth "github.com/opengovern/dca-auth-go"
	"github.com/opengovern/dca-auth-go/apierr"
)

func TestWebhookVerifyCommand(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	payload := `{"event":"license.created"}`
	sig := dcaauth.SignPayload([]byte(payload), "whsec")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(payload))
	rootCmd.SetArgs([]string{"webhook", "verify", "--secret", "whsec", "--signature", "sha256=" + sig})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Signature OK")

	rootCmd.SetIn(strings.NewReader(payload + " "))
	rootCmd.SetArgs([]string{"webhook", "verify", "--secret", "whsec", "--signature", sig})
	err := rootCmd.Execute()
	assert.ErrorIs(t, err, apierr.ErrWebhook)
}

func TestDescribeLicenseError(t *testing.T) {
	err := describeLicenseError(apierr.Newf(apierr.KindLicenseExpired, "License %s has expired", "K-1"))
	assert.EqualError(t, err, "License K-1 has expired")

	err = describeLicenseError(apierr.NewRateLimit("", 42))
	assert.EqualError(t, err, "rate limited, retry in 42s")

	server := apierr.NewServer("", 502)
	assert.Same(t, server, describeLicenseError(server))
}

func TestOpenStorage_RedisClientReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	prevAddr, prevKey := redisAddr, redisKey
	redisAddr, redisKey = mr.Addr(), "dca-auth:test"
	t.Cleanup(func() { redisAddr, redisKey = prevAddr, prevKey })

	store, err := openStorage(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "access_token", "tok"))

	require.Len(t, closers, 1)
	rdb, ok := closers[0].(*redis.Client)
	require.True(t, ok)

	closeResources()
	assert.Empty(t, closers)
	assert.ErrorIs(t, rdb.Ping(context.Background()).Err(), redis.ErrClosed)
}
