package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cybertec-postgresql/sitesync/internal/retry"
	sitesync "github.com/cybertec-postgresql/sitesync/internal/sync"
)

// DefaultStatusTTL is how long a published status survives without keep-alives
const DefaultStatusTTL = 30 * time.Second

// leaseKV is the subset of *clientv3.Client used by the publisher
type leaseKV interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

// Publisher writes the latest driver status under a lease so that
// a site that goes away disappears from etcd after the TTL
type Publisher struct {
	kv      leaseKV
	key     string
	ttl     time.Duration
	updates chan sitesync.Status
	retry   *retry.Config
}

// NewPublisher publishes to <prefix>/sites/<site>/status
func NewPublisher(client *Client, site string, ttl time.Duration) *Publisher {
	return newPublisher(client.client, client.SiteKey(site, "status"), ttl)
}

func newPublisher(kv leaseKV, key string, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &Publisher{
		kv:      kv,
		key:     key,
		ttl:     ttl,
		updates: make(chan sitesync.Status, 1),
		retry:   retry.EtcdDefaults(),
	}
}

// Key returns the key the status is written to
func (p *Publisher) Key() string { return p.key }

// Publish queues a status for writing. Only the most recent pending status is kept.
// It never blocks and can be passed to the driver as a StatusListener.
func (p *Publisher) Publish(status sitesync.Status) {
	for {
		select {
		case p.updates <- status:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// Run grants the lease and writes queued statuses until ctx is cancelled.
// The lease is revoked on exit.
func (p *Publisher) Run(ctx context.Context) error {
	lease, err := p.grant(ctx)
	if err != nil {
		return err
	}
	defer p.revoke(context.WithoutCancel(ctx), lease)

	keepAlive, err := p.kv.KeepAlive(ctx, lease)
	if err != nil {
		return fmt.Errorf("failed to keep etcd lease alive: %w", err)
	}

	logger := logrus.WithFields(logrus.Fields{"key": p.key, "lease": int64(lease)})
	logger.Info("Publishing sync status to etcd")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-keepAlive:
			if ok {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("etcd lease keep-alive stopped, granting a new lease")
			if lease, err = p.grant(ctx); err != nil {
				return err
			}
			if keepAlive, err = p.kv.KeepAlive(ctx, lease); err != nil {
				return fmt.Errorf("failed to keep etcd lease alive: %w", err)
			}
			logger = logger.WithField("lease", int64(lease))
		case status := <-p.updates:
			if err := p.put(ctx, lease, status); err != nil {
				logger.WithError(err).Error("Failed to publish sync status")
			}
		}
	}
}

func (p *Publisher) grant(ctx context.Context) (clientv3.LeaseID, error) {
	var lease clientv3.LeaseID
	err := retry.WithOperation(ctx, p.retry, func() error {
		resp, err := p.kv.Grant(ctx, int64(p.ttl/time.Second))
		if err != nil {
			return err
		}
		lease = resp.ID
		return nil
	}, "etcd lease grant")
	if err != nil {
		return 0, fmt.Errorf("failed to grant etcd lease: %w", err)
	}
	return lease, nil
}

func (p *Publisher) put(ctx context.Context, lease clientv3.LeaseID, status sitesync.Status) error {
	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return retry.WithOperation(ctx, p.retry, func() error {
		_, err := p.kv.Put(ctx, p.key, string(value), clientv3.WithLease(lease))
		return err
	}, "etcd status put")
}

func (p *Publisher) revoke(ctx context.Context, lease clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.kv.Revoke(ctx, lease); err != nil {
		logrus.WithError(err).Warn("Failed to revoke etcd lease")
	}
}
