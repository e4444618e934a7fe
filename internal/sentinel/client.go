package sentinel

import (
	"context"
	"net"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
)

// Client is the cache-leadership surface the coordinator drives. The sentinel
// quorum is the source of truth for the master designation; the client never
// picks a master itself.
type Client interface {
	CurrentMaster(ctx context.Context, service string) (string, *failover.Error)
	RequestFailover(ctx context.Context, service string) (string, *failover.Error)
	CheckReachable(ctx context.Context) *failover.Error
	ValidateCache(ctx context.Context, masterAddr, token string) *failover.Error
}

const (
	failoverPollEvery   = 100 * time.Millisecond
	failoverPollTimeout = 2 * time.Second
	dialTimeout         = 500 * time.Millisecond
)

// QuorumClient talks to a set of sentinel processes. Connections are owned by
// the client, acquired at startup and released by Close.
type QuorumClient struct {
	addrs     []string
	sentinels []*redis.SentinelClient
	logger    *logging.Logger
}

// NewQuorumClient creates a client over the configured sentinel addresses
func NewQuorumClient(addrs []string, logger *logging.Logger) *QuorumClient {
	sentinels := make([]*redis.SentinelClient, 0, len(addrs))
	for _, addr := range addrs {
		sentinels = append(sentinels, redis.NewSentinelClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  dialTimeout,
			ReadTimeout:  dialTimeout,
			WriteTimeout: dialTimeout,
		}))
	}
	return &QuorumClient{addrs: addrs, sentinels: sentinels, logger: logger}
}

// Close releases all sentinel connections
func (c *QuorumClient) Close() error {
	var firstErr error
	for _, s := range c.sentinels {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CurrentMaster returns the master address the quorum currently advertises
// for the named service. The first responsive sentinel answers; if none
// respond the quorum is considered unavailable.
func (c *QuorumClient) CurrentMaster(ctx context.Context, service string) (string, *failover.Error) {
	var lastErr error
	for i, s := range c.sentinels {
		addr, err := s.GetMasterAddrByName(ctx, service).Result()
		if err == nil && len(addr) == 2 {
			return net.JoinHostPort(addr[0], addr[1]), nil
		}
		lastErr = err
		c.logger.Debug("Sentinel did not answer master lookup", map[string]interface{}{
			"sentinel": c.addrs[i],
			"error":    errString(err),
		})
	}
	return "", failover.NewError(failover.KindQuorumUnavailable, "no sentinel answered master lookup for %s: %v", service, lastErr)
}

// RequestFailover instructs the quorum to elect a new master and waits until
// the advertised address changes, polling at 100 ms intervals up to a 2 s cap.
// Returns the new master address.
func (c *QuorumClient) RequestFailover(ctx context.Context, service string) (string, *failover.Error) {
	before, ferr := c.CurrentMaster(ctx, service)
	if ferr != nil {
		return "", ferr
	}

	var issued bool
	var lastErr error
	for i, s := range c.sentinels {
		if err := s.Failover(ctx, service).Err(); err == nil {
			issued = true
			break
		} else {
			lastErr = err
			c.logger.Debug("Sentinel refused failover command", map[string]interface{}{
				"sentinel": c.addrs[i],
				"error":    err.Error(),
			})
		}
	}
	if !issued {
		return "", failover.NewError(failover.KindQuorumUnavailable, "no sentinel accepted failover for %s: %v", service, lastErr)
	}

	pollCtx, cancel := context.WithTimeout(ctx, failoverPollTimeout)
	defer cancel()

	ticker := time.NewTicker(failoverPollEvery)
	defer ticker.Stop()

	for {
		current, ferr := c.CurrentMaster(pollCtx, service)
		if ferr == nil && current != before {
			return current, nil
		}

		select {
		case <-pollCtx.Done():
			return "", failover.NewError(failover.KindCacheFailoverFailed, "master for %s did not change from %s within %s", service, before, failoverPollTimeout)
		case <-ticker.C:
		}
	}
}

// CheckReachable pings the quorum; it succeeds if any sentinel answers
func (c *QuorumClient) CheckReachable(ctx context.Context) *failover.Error {
	var lastErr error
	for _, s := range c.sentinels {
		if err := s.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return failover.NewError(failover.KindQuorumUnavailable, "no sentinel reachable: %v", lastErr)
}

// ValidateCache performs a SET/GET round-trip with the given token against
// the named master
func (c *QuorumClient) ValidateCache(ctx context.Context, masterAddr, token string) *failover.Error {
	client := redis.NewClient(&redis.Options{
		Addr:         masterAddr,
		DialTimeout:  dialTimeout,
		ReadTimeout:  dialTimeout,
		WriteTimeout: dialTimeout,
	})
	defer client.Close()

	key := "failover:validation:" + token
	if err := client.Set(ctx, key, token, time.Minute).Err(); err != nil {
		return failover.NewError(failover.KindValidationFailed, "cache write against %s: %v", masterAddr, err)
	}
	got, err := client.Get(ctx, key).Result()
	if err != nil {
		return failover.NewError(failover.KindValidationFailed, "cache read-back against %s: %v", masterAddr, err)
	}
	if got != token {
		return failover.NewError(failover.KindValidationFailed, "cache read-back mismatch against %s", masterAddr)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "empty reply"
	}
	return err.Error()
}
