package etcd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cybertec-postgresql/sitesync/internal/retry"
)

// NewClientWithRetry connects to etcd and checks the connection, retrying with backoff
func NewClientWithRetry(ctx context.Context, dsn string) (*Client, error) {
	config := retry.EtcdDefaults()

	var client *Client
	err := retry.WithOperation(ctx, config, func() error {
		var attemptErr error
		client, attemptErr = NewClient(dsn)
		if attemptErr != nil {
			return attemptErr
		}

		if _, testErr := client.client.Get(ctx, "healthcheck"); testErr != nil {
			_ = client.Close()
			return testErr
		}

		return nil
	}, "etcd connect")

	if err != nil {
		logrus.WithError(err).Error("Failed to establish etcd connection after all retries")
		return nil, err
	}

	return client, nil
}

// watchWithRecovery watches a key and re-establishes the watch when it breaks
func watchWithRecovery(ctx context.Context, w clientv3.Watcher, key string, restartDelay time.Duration) <-chan clientv3.WatchResponse {
	watchChan := make(chan clientv3.WatchResponse)

	go func() {
		defer close(watchChan)

		var currentRevision int64
		for {
			opts := []clientv3.OpOption{}
			if currentRevision > 0 {
				opts = append(opts, clientv3.WithRev(currentRevision+1))
			}
			innerWatchChan := w.Watch(ctx, key, opts...)

		forward:
			for {
				select {
				case <-ctx.Done():
					return
				case watchResp, ok := <-innerWatchChan:
					if !ok {
						logrus.Warn("etcd watch channel closed, attempting to restart")
						break forward
					}
					if watchResp.Canceled {
						logrus.Warn("etcd watch was canceled, attempting to restart")
						break forward
					}
					if err := watchResp.Err(); err != nil {
						logrus.WithError(err).Error("etcd watch error, attempting to restart")
						break forward
					}

					for _, event := range watchResp.Events {
						if event.Kv.ModRevision > currentRevision {
							currentRevision = event.Kv.ModRevision
						}
					}

					select {
					case watchChan <- watchResp:
					case <-ctx.Done():
						return
					}
				}
			}

			logrus.WithField("revision", currentRevision).Info("Restarting etcd watch")
			select {
			case <-ctx.Done():
				return
			case <-time.After(restartDelay):
			}
		}
	}()

	return watchChan
}
