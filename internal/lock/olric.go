package lock

import (
	"context"
	"errors"
	"io"
	stdlog "log"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/olric-data/olric"
	olricconfig "github.com/olric-data/olric/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by lock operations after Close.
var ErrClosed = errors.New("lock: locker closed")

// OlricConfig configures the distributed locker.
// Embedded mode runs a local Olric node that gossips with Peers; client mode
// connects to an existing cluster at Addresses.
type OlricConfig struct {
	Embedded  bool
	BindAddr  string
	Peers     []string
	Addresses []string
	DMapName  string
}

// OlricLocker implements Locker on an Olric DMap. Acquisition is a single
// atomic Put with NX and a PX expiry, so exactly one node wins each lock and
// crashed holders are reclaimed by the TTL.
type OlricLocker struct {
	db     *olric.Olric // embedded mode only
	client olric.Client
	dmap   olric.DMap
	log    zerolog.Logger
	closed atomic.Bool
}

var _ Locker = (*OlricLocker)(nil)

// NewOlricLocker creates the distributed locker per cfg.
func NewOlricLocker(ctx context.Context, cfg OlricConfig) (*OlricLocker, error) {
	lg := log.With().Str("component", "lock").Str("backend", "olric").Logger()

	dmapName := cfg.DMapName
	if dmapName == "" {
		dmapName = "searchbridge-locks"
	}

	if cfg.Embedded {
		lg.Debug().Str("mode", "embedded").Msg("starting embedded olric node")
		return newEmbeddedLocker(ctx, cfg, dmapName, lg)
	}
	lg.Debug().Str("mode", "client").Strs("addresses", cfg.Addresses).Msg("connecting to olric cluster")
	return newClientLocker(ctx, cfg, dmapName, lg)
}

func newEmbeddedLocker(ctx context.Context, cfg OlricConfig, dmapName string, lg zerolog.Logger) (*OlricLocker, error) {
	c := olricconfig.New("local")

	host, port := splitBindAddr(cfg.BindAddr)
	c.BindAddr = host
	if port > 0 {
		c.BindPort = port
	}
	if len(cfg.Peers) > 0 {
		c.Peers = cfg.Peers
	}

	// Olric's own logging is far too chatty for a sidecar concern.
	c.LogOutput = io.Discard
	c.Logger = stdlog.New(io.Discard, "", 0)

	ready := make(chan struct{})
	c.Started = func() { close(ready) }

	db, err := olric.New(c)
	if err != nil {
		return nil, err
	}

	startErr := make(chan error, 1)
	go func() {
		if err := db.Start(); err != nil {
			startErr <- err
		}
	}()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	select {
	case <-ready:
	case err := <-startErr:
		return nil, err
	case <-startupCtx.Done():
		// Node may still become usable; give the embedded client a beat.
		lg.Debug().Msg("olric startup timeout, proceeding")
		time.Sleep(100 * time.Millisecond)
	}

	client := db.NewEmbeddedClient()
	dm, err := client.NewDMap(dmapName)
	if err != nil {
		if shutdownErr := db.Shutdown(context.Background()); shutdownErr != nil {
			lg.Error().Err(shutdownErr).Msg("olric shutdown after dmap failure")
		}
		return nil, err
	}

	lg.Info().
		Str("bind_addr", host).
		Int("bind_port", port).
		Str("dmap", dmapName).
		Int("peers", len(cfg.Peers)).
		Msg("embedded olric locker ready")

	return &OlricLocker{db: db, client: client, dmap: dm, log: lg}, nil
}

func newClientLocker(ctx context.Context, cfg OlricConfig, dmapName string, lg zerolog.Logger) (*OlricLocker, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("lock: olric addresses required for client mode")
	}

	client, err := olric.NewClusterClient(cfg.Addresses)
	if err != nil {
		return nil, err
	}

	dm, err := client.NewDMap(dmapName)
	if err != nil {
		if closeErr := client.Close(ctx); closeErr != nil {
			lg.Error().Err(closeErr).Msg("olric client close after dmap failure")
		}
		return nil, err
	}

	lg.Info().Strs("addresses", cfg.Addresses).Str("dmap", dmapName).Msg("olric cluster locker ready")
	return &OlricLocker{client: client, dmap: dm, log: lg}, nil
}

// TryAcquire puts the lock key with NX so only one caller across the cluster
// wins, and PX so a crashed holder's lock self-expires.
func (o *OlricLocker) TryAcquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if o.closed.Load() {
		return "", false, ErrClosed
	}

	token := uuid.NewString()
	err := o.dmap.Put(ctx, name, token, olric.NX(), olric.PX(ttl))
	if errors.Is(err, olric.ErrKeyFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	o.log.Debug().Str("lock", name).Dur("ttl", ttl).Msg("lock acquired")
	return token, true, nil
}

// Release deletes the lock key when token still holds it. The read-check-
// delete is not atomic; the worst case re-deletes a lock that just expired,
// which the TTL already made safe.
func (o *OlricLocker) Release(ctx context.Context, name, token string) error {
	if o.closed.Load() {
		return ErrClosed
	}

	resp, err := o.dmap.Get(ctx, name)
	if errors.Is(err, olric.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	held, err := resp.String()
	if err != nil || held != token {
		return nil
	}

	if _, err := o.dmap.Delete(ctx, name); err != nil && !errors.Is(err, olric.ErrKeyNotFound) {
		return err
	}
	o.log.Debug().Str("lock", name).Msg("lock released")
	return nil
}

// Close shuts down the embedded node or disconnects the cluster client.
// Idempotent.
func (o *OlricLocker) Close() error {
	if o.closed.Swap(true) {
		return nil
	}

	ctx := context.Background()
	if o.dmap != nil {
		if err := o.dmap.Close(ctx); err != nil {
			o.log.Debug().Err(err).Msg("dmap close during shutdown")
		}
	}
	if o.db != nil {
		return o.db.Shutdown(ctx)
	}
	if o.client != nil {
		return o.client.Close(ctx)
	}
	return nil
}

func splitBindAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
