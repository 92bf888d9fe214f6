// Package turnrelay runs a TURN server on a loopback UDP socket, so local
// peers can be forced through a relay.
package turnrelay

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/turn/v4"
	"go.uber.org/zap"

	"github.com/holochain/tx5-go-pion-rtc/native"
	"github.com/holochain/tx5-go-pion-rtc/native/pionengine"
)

// Config holds the relay credentials. Empty fields get defaults.
type Config struct {
	Realm    string
	Username string
	Password string

	// Addr is the UDP listen address. Defaults to 127.0.0.1:0.
	Addr string

	Logger *zap.Logger
}

func (c *Config) withDefaults() {
	if c.Realm == "" {
		c.Realm = "tx5-rtc"
	}
	if c.Username == "" {
		c.Username = "tx5"
	}
	if c.Password == "" {
		c.Password = "tx5"
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:0"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Relay is a running TURN server.
type Relay struct {
	conf   Config
	conn   net.PacketConn
	server *turn.Server

	closeOnce sync.Once
	closeErr  error
}

// Start listens on conf.Addr and serves TURN allocations relayed on the same
// host address.
func Start(conf Config) (*Relay, error) {
	conf.withDefaults()

	conn, err := net.ListenPacket("udp4", conf.Addr)
	if err != nil {
		return nil, fmt.Errorf("turnrelay: listen %s: %w", conf.Addr, err)
	}
	host := conn.LocalAddr().(*net.UDPAddr).IP

	key := turn.GenerateAuthKey(conf.Username, conf.Realm, conf.Password)
	server, err := turn.NewServer(turn.ServerConfig{
		Realm:         conf.Realm,
		LoggerFactory: pionengine.NewLoggerFactory(conf.Logger.Named("turn")),
		AuthHandler: func(username, realm string, src net.Addr) ([]byte, bool) {
			if username != conf.Username || realm != conf.Realm {
				conf.Logger.Debug("turn auth rejected",
					zap.String("username", username),
					zap.Stringer("src", src))
				return nil, false
			}
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{{
			PacketConn: conn,
			RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
				RelayAddress: host,
				Address:      host.String(),
			},
		}},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("turnrelay: %w", err)
	}

	r := &Relay{conf: conf, conn: conn, server: server}
	conf.Logger.Info("turn relay listening", zap.String("url", r.URL()))
	return r, nil
}

// URL returns the turn: url of the relay.
func (r *Relay) URL() string {
	return fmt.Sprintf("turn:%s?transport=udp", r.conn.LocalAddr())
}

// ICEServer returns the relay as a peer connection ICE server.
func (r *Relay) ICEServer() native.ICEServer {
	return native.ICEServer{
		URLs:       []string{r.URL()},
		Username:   r.conf.Username,
		Credential: r.conf.Password,
	}
}

// Close stops the server and its socket.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.server.Close()
	})
	return r.closeErr
}
