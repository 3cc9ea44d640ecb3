package etcd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// WatchTrigger calls trigger every time <prefix>/sites/<site>/trigger is written.
// It blocks until ctx is cancelled.
func WatchTrigger(ctx context.Context, client *Client, site string, trigger func() bool) error {
	return watchTrigger(ctx, client.client, client.SiteKey(site, "trigger"), trigger)
}

func watchTrigger(ctx context.Context, w clientv3.Watcher, key string, trigger func() bool) error {
	logger := logrus.WithField("key", key)
	logger.Info("Watching etcd for sync requests")

	for resp := range watchWithRecovery(ctx, w, key, time.Second) {
		for _, event := range resp.Events {
			if event.Type != clientv3.EventTypePut {
				continue
			}
			if trigger() {
				logger.WithField("revision", event.Kv.ModRevision).Info("Sync requested through etcd")
			} else {
				logger.Debug("Sync request through etcd ignored, sync already pending")
			}
		}
	}
	return ctx.Err()
}
