package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/dispatch"
	"github.com/holochain/tx5-go-pion-rtc/native/pionengine"
	"github.com/holochain/tx5-go-pion-rtc/rtc"
)

func TestLoadConfig(t *testing.T) {
	conf, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "info", conf.LogLevel)

	path := filepath.Join(t.TempDir(), "rtc.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"contextId": 3, // comment
		"logLevel": "warn",
	}`), 0o600))

	conf, err = loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, conf.ContextID)
	require.Equal(t, "warn", conf.LogLevel)
}

func TestRunLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("opens network sockets")
	}

	conf, err := loadConfig("")
	require.NoError(t, err)

	log := zap.NewNop()
	funcs := dispatch.NewFuncs(log)
	engine, err := pionengine.New(funcs, pionengine.Config{Logger: log})
	require.NoError(t, err)
	defer engine.Close()
	rt := dispatch.StartRenderThread(funcs, log)
	defer rt.Stop()

	host := rtc.NewHost(engine, rt, conf.Options()...)
	defer host.OnHostShutdown()
	c, err := host.OnHostInit(conf.ContextID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	res, err := runLoopback(ctx, log, c, conf, options{
		messages: 5,
		frames:   10,
		interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, 5, res.messages)
}
