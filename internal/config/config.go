// Package config parses sitesync options from flags, environment and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"

	"github.com/cybertec-postgresql/sitesync/internal/central"
)

// Options holds the application configuration. Precedence is
// command line, then environment, then config file, then defaults.
type Options struct {
	ConfigFile         string        `short:"c" long:"config" env:"SITESYNC_CONFIG" description:"Path to a TOML config file"`
	PostgresDSN        string        `short:"p" long:"postgres-dsn" env:"SITESYNC_POSTGRES_DSN" toml:"postgres_dsn" description:"PostgreSQL connection string"`
	CentralURL         string        `short:"u" long:"central-url" env:"SITESYNC_CENTRAL_URL" toml:"central_url" description:"Base URL of the central server"`
	SiteName           string        `short:"s" long:"site-name" env:"SITESYNC_SITE_NAME" toml:"site_name" description:"Site name used to authenticate"`
	SitePassword       string        `long:"site-password" env:"SITESYNC_SITE_PASSWORD" toml:"site_password" description:"Site password, hashed before it is sent"`
	SitePasswordSha256 string        `long:"site-password-sha256" env:"SITESYNC_SITE_PASSWORD_SHA256" toml:"site_password_sha256" description:"Hex SHA-256 of the site password"`
	SiteUUID           string        `long:"site-uuid" env:"SITESYNC_SITE_UUID" toml:"site_uuid" description:"Site UUID, fetched from the central server when empty"`
	SyncInterval       time.Duration `short:"i" long:"sync-interval" env:"SITESYNC_SYNC_INTERVAL" toml:"sync_interval" description:"Time between scheduled syncs" default:"5m"`
	BatchSize          int           `long:"batch-size" env:"SITESYNC_BATCH_SIZE" toml:"batch_size" description:"Records per push batch and pull page" default:"500"`
	BufferRetention    time.Duration `long:"buffer-retention" env:"SITESYNC_BUFFER_RETENTION" toml:"buffer_retention" description:"Keep integrated buffer rows this long, 0 keeps them forever" default:"168h"`
	CentralTimeout     time.Duration `long:"central-timeout" env:"SITESYNC_CENTRAL_TIMEOUT" toml:"central_timeout" description:"Timeout of one request to the central server" default:"30s"`
	ListenAddr         string        `long:"listen" env:"SITESYNC_LISTEN" toml:"listen" description:"Address of the ops API, empty disables it" default:":8000"`
	EtcdDSN            string        `short:"e" long:"etcd-dsn" env:"SITESYNC_ETCD_DSN" toml:"etcd_dsn" description:"etcd connection string, empty disables status publishing"`
	LogLevel           string        `short:"l" long:"log-level" env:"SITESYNC_LOG_LEVEL" toml:"log_level" description:"Log level: debug|info|warn|error" default:"info"`
	LogJSON            bool          `long:"log-json" env:"SITESYNC_LOG_JSON" toml:"log_json" description:"Write logs as JSON"`
	Version            bool          `short:"v" long:"version" description:"Show version information"`
	Help               bool
}

// ParseCLI parses command-line arguments, the environment and the config file
func ParseCLI(args []string) (*Options, error) {
	return parse(args, os.Stdout)
}

func parse(args []string, helpOut io.Writer) (opts *Options, err error) {
	opts = new(Options)
	parser := flags.NewParser(opts, flags.HelpFlag)
	nonParsedArgs, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			opts.Help = true
		}
		if !flags.WroteHelp(err) {
			parser.WriteHelp(helpOut)
		}
		return opts, err
	}
	if len(nonParsedArgs) > 0 {
		return opts, fmt.Errorf("unknown argument(s): %v", nonParsedArgs)
	}
	if opts.ConfigFile != "" {
		if err = applyFile(parser, opts); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// applyFile fills every option that was given neither on the command line
// nor in the environment from the TOML file
func applyFile(parser *flags.Parser, opts *Options) error {
	var fileOpts Options
	md, err := toml.DecodeFile(opts.ConfigFile, &fileOpts)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in config file %s: %v", opts.ConfigFile, undecoded)
	}

	dst := reflect.ValueOf(opts).Elem()
	src := reflect.ValueOf(&fileOpts).Elem()
	for _, option := range parser.Options() {
		field := option.Field()
		key := field.Tag.Get("toml")
		if key == "" || !md.IsDefined(key) || option.IsSet() {
			continue
		}
		if envKey := option.EnvKeyWithNamespace(); envKey != "" {
			if _, ok := os.LookupEnv(envKey); ok {
				continue
			}
		}
		dst.FieldByName(field.Name).Set(src.FieldByName(field.Name))
	}
	return nil
}

// Validate checks that the options describe a usable site
func (o *Options) Validate() error {
	var errs []error
	if o.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres DSN is required"))
	}
	if o.CentralURL == "" {
		errs = append(errs, errors.New("central URL is required"))
	}
	if o.SiteName == "" {
		errs = append(errs, errors.New("site name is required"))
	}
	if o.SitePassword == "" && o.SitePasswordSha256 == "" {
		errs = append(errs, errors.New("site password or its SHA-256 is required"))
	}
	if o.SitePassword != "" && o.SitePasswordSha256 != "" {
		errs = append(errs, errors.New("site password and its SHA-256 are mutually exclusive"))
	}
	if o.SiteUUID != "" {
		if _, err := uuid.Parse(o.SiteUUID); err != nil {
			errs = append(errs, fmt.Errorf("invalid site UUID: %w", err))
		}
	}
	if o.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync interval must be positive"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if o.BufferRetention < 0 {
		errs = append(errs, errors.New("buffer retention must not be negative"))
	}
	return errors.Join(errs...)
}

// Central returns the central client configuration
func (o *Options) Central() central.Config {
	hash := o.SitePasswordSha256
	if o.SitePassword != "" {
		hash = central.HashPassword(o.SitePassword)
	}
	return central.Config{
		URL:            o.CentralURL,
		SiteName:       o.SiteName,
		PasswordSha256: hash,
		SiteUUID:       o.SiteUUID,
		Timeout:        o.CentralTimeout,
	}
}
