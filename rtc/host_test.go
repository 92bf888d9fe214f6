package rtc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/native/nativetest"
)

func TestHostLifecycle(t *testing.T) {
	log := &nativetest.Log{}
	fake := nativetest.NewFake(log)
	host := NewHost(fake, &nativetest.Target{Log: log},
		WithBatchAllocator(&nativetest.Allocator{Log: log}))

	one, err := host.OnHostInit(1)
	require.NoError(t, err)
	require.Equal(t, 1, one.ID())

	_, err = host.OnHostInit(1)
	require.ErrorIs(t, err, ErrDuplicateContext)

	two, err := host.OnHostInit(2)
	require.NoError(t, err)

	got, ok := host.Context(1)
	require.True(t, ok)
	require.Same(t, one, got)

	_, err = two.CreatePeerConnection(native.PeerConnectionConfig{})
	require.NoError(t, err)

	host.Release(1)
	require.Equal(t, StateDisposed, one.State())
	_, ok = host.Context(1)
	require.False(t, ok)

	host.OnHostShutdown()
	require.Equal(t, StateDisposed, two.State())
	require.Equal(t, 1, log.Count("DestroyContext(1)"))
	require.Equal(t, 1, log.Count("DestroyContext(2)"))
	require.Equal(t, 1, log.Count("DeletePeerConnection("))

	// ids can be reused after shutdown
	again, err := host.OnHostInit(1)
	require.NoError(t, err)
	again.Free()
}

func TestParseConfig(t *testing.T) {
	conf, err := ParseConfig([]byte(`{
		// picked by the host
		"contextId": 4,
		"logLevel": "debug",
		"ephemeralUdpPortMin": 40000,
		"ephemeralUdpPortMax": 40100,
		"iceServers": [
			/* public stun */
			{"urls": ["stun:stun.example.net:3478"]},
		],
	}`))
	require.NoError(t, err)

	require.Equal(t, 4, conf.ContextID)
	require.Equal(t, "debug", conf.LogLevel)
	require.Equal(t, DefaultBatchCapacity, *conf.BatchCapacity)

	lo, hi := conf.PortRange()
	require.Equal(t, uint16(40000), lo)
	require.Equal(t, uint16(40100), hi)

	pcc := conf.PeerConnectionConfig()
	require.Equal(t, []string{"stun:stun.example.net:3478"}, pcc.ICEServers[0].URLs)

	c := NewContext(nativetest.NewFake(&nativetest.Log{}), &nativetest.Target{Log: &nativetest.Log{}}, conf.Options()...)
	require.Equal(t, 4, c.ID())

	l, err := conf.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestParseConfigDefaults(t *testing.T) {
	conf, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)

	require.Equal(t, "info", conf.LogLevel)
	lo, hi := conf.PortRange()
	require.Equal(t, uint16(1), lo)
	require.Equal(t, uint16(65535), hi)
	require.Empty(t, conf.ICEServers)
}

func TestParseConfigInvalid(t *testing.T) {
	for name, input := range map[string]string{
		"syntax":       `{"contextId": }`,
		"empty range":  `{"ephemeralUdpPortMin": 10, "ephemeralUdpPortMax": 9}`,
		"log level":    `{"logLevel": "loud"}`,
		"negative cap": `{"batchCapacity": -1}`,
		"ice no urls":  `{"iceServers": [{"username": "u"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(input))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtc.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("// context\n{\"batchCapacity\": 16}\n"), 0o600))

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 16, *conf.BatchCapacity)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.Error(t, err)
}
