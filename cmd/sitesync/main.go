// Package main implements the sitesync binary that keeps a remote site
// database in sync with the central server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cybertec-postgresql/sitesync/internal/api"
	"github.com/cybertec-postgresql/sitesync/internal/buffer"
	"github.com/cybertec-postgresql/sitesync/internal/central"
	"github.com/cybertec-postgresql/sitesync/internal/config"
	"github.com/cybertec-postgresql/sitesync/internal/db"
	"github.com/cybertec-postgresql/sitesync/internal/etcd"
	"github.com/cybertec-postgresql/sitesync/internal/log"
	"github.com/cybertec-postgresql/sitesync/internal/pull"
	"github.com/cybertec-postgresql/sitesync/internal/push"
	"github.com/cybertec-postgresql/sitesync/internal/retry"
	sitesync "github.com/cybertec-postgresql/sitesync/internal/sync"
	"github.com/cybertec-postgresql/sitesync/internal/translator"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ShowVersion prints version information
func ShowVersion() {
	fmt.Printf("sitesync version %s\n", version)
	if commit != "none" && commit != "" {
		fmt.Printf("commit: %s\n", commit)
	}
	if date != "unknown" && date != "" {
		fmt.Printf("built: %s\n", date)
	}
}

// SetupCloseHandler cancels the context when the process receives an interrupt
func SetupCloseHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logrus.Debug("SetupCloseHandler received an interrupt from OS. Closing session...")
		cancel()
	}()
}

func main() {
	opts, err := config.ParseCLI(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	if opts.Version {
		ShowVersion()
		os.Exit(0)
	}
	if err := opts.Validate(); err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if err := log.Setup(opts.LogLevel, opts.LogJSON); err != nil {
		logrus.WithError(err).Fatal("Failed to setup logging")
	}
	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"pid":     os.Getpid(),
		"site":    opts.SiteName,
	}).Info("sitesync starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetupCloseHandler(cancel)

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Fatal("sitesync failed")
	}
	logrus.Info("Graceful shutdown completed")
}

func run(ctx context.Context, opts *config.Options) error {
	pool, err := db.NewWithRetry(ctx, opts.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		return err
	}

	registry, err := translator.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to build translator registry: %w", err)
	}

	centralConfig := opts.Central()
	client := central.New(centralConfig, retry.CentralDefaults())
	site, err := resolveSiteUUID(ctx, client, opts.SiteUUID)
	if err != nil {
		return err
	}
	if centralConfig.SiteUUID == "" {
		centralConfig.SiteUUID = site.String()
		client = central.New(centralConfig, retry.CentralDefaults())
	}

	pusher := push.NewPipeline(pool, registry, client, site, opts.BatchSize)
	puller := pull.NewPipeline(pool, registry, client, opts.BatchSize)

	g, ctx := errgroup.WithContext(ctx)

	var listeners []sitesync.StatusListener
	var etcdClient *etcd.Client
	if opts.EtcdDSN != "" {
		etcdClient, err = etcd.NewClientWithRetry(ctx, opts.EtcdDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to etcd: %w", err)
		}
		defer etcdClient.Close()

		publisher := etcd.NewPublisher(etcdClient, opts.SiteName, etcd.DefaultStatusTTL)
		listeners = append(listeners, publisher.Publish)
		g.Go(func() error { return publisher.Run(ctx) })
	}

	driver := sitesync.NewDriver(pusher, puller, sitesync.Config{
		Interval:        opts.SyncInterval,
		BufferRetention: opts.BufferRetention,
	}, listeners...)
	g.Go(func() error { return driver.Run(ctx) })

	if etcdClient != nil {
		g.Go(func() error { return etcd.WatchTrigger(ctx, etcdClient, opts.SiteName, driver.TriggerManualSync) })
	}
	if opts.ListenAddr != "" {
		server := api.New(opts.ListenAddr, driver, backlog(pool))
		g.Go(func() error { return server.Run(ctx) })
	}

	return g.Wait()
}

// resolveSiteUUID returns the configured site UUID or asks the central server for it
func resolveSiteUUID(ctx context.Context, client *central.Client, configured string) (uuid.UUID, error) {
	if configured != "" {
		return uuid.Parse(configured)
	}
	info, err := client.SiteInfo(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to fetch site UUID from central server: %w", err)
	}
	site, err := uuid.Parse(info.SiteUUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("central server returned invalid site UUID %q: %w", info.SiteUUID, err)
	}
	logrus.WithFields(logrus.Fields{"site_id": info.SiteID, "site_uuid": site}).Info("Site identity fetched from central server")
	return site, nil
}

func backlog(q db.PgxIface) api.BacklogFunc {
	return func(ctx context.Context) (api.Backlog, error) {
		outgoing, err := push.Pending(ctx, q)
		if err != nil {
			return api.Backlog{}, err
		}
		incoming, err := buffer.CountPending(ctx, q)
		if err != nil {
			return api.Backlog{}, err
		}
		return api.Backlog{Outgoing: outgoing, Incoming: incoming}, nil
	}
}
