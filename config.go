/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const minTokenSecret = 16

type Config struct {
	bind         string
	dbPath       string
	mqttBroker   string
	mqttClientID string
	mqttTopic    string
	port         int
	prefix       string
	profile      bool
	rateBurst    int
	rateLimit    float64
	tlsCert      string
	tlsKey       string
	tokenSecret  string
	tokenTTL     time.Duration
	trustProxy   bool
	verbose      bool
	version      bool

	// client
	localDB    string
	playerFile string
	server     string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.dbPath == "" {
		return errors.New("--db must not be empty")
	}
	if c.tokenSecret != "" && len(c.tokenSecret) < minTokenSecret {
		return fmt.Errorf("--token-secret must be at least %d bytes", minTokenSecret)
	}
	if c.tokenTTL < 0 {
		return fmt.Errorf("invalid token ttl: %s", c.tokenTTL)
	}
	if c.rateLimit < 0 || c.rateBurst < 0 {
		return errors.New("--rate-limit and --rate-burst must not be negative")
	}
	if c.rateLimit > 0 && c.rateBurst == 0 {
		return errors.New("--rate-burst must be at least 1 when --rate-limit is set")
	}
	if c.mqttBroker != "" && c.mqttClientID == "" {
		return errors.New("--mqtt-client-id must be set when --mqtt-broker is used")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// bindEnv lets every flag in fs fall back to its YARDBOX_ environment
// variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("YARDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "yardbox",
		Short:         "A companion server and client for in-person murder mystery investigations.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: YARDBOX_BIND)")
	fs.StringVar(&cfg.dbPath, "db", "yardbox.db", "path to the sqlite database (env: YARDBOX_DB)")
	fs.StringVar(&cfg.mqttBroker, "mqtt-broker", "", "mirror change events to this mqtt broker, e.g. tcp://localhost:1883 (env: YARDBOX_MQTT_BROKER)")
	fs.StringVar(&cfg.mqttClientID, "mqtt-client-id", "yardbox", "client id used when connecting to the mqtt broker (env: YARDBOX_MQTT_CLIENT_ID)")
	fs.StringVar(&cfg.mqttTopic, "mqtt-topic", "yardbox", "topic prefix for mirrored change events (env: YARDBOX_MQTT_TOPIC)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: YARDBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: YARDBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: YARDBOX_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 20, "burst size for per-client write rate limiting (env: YARDBOX_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 5, "writes per second allowed per client, 0 to disable (env: YARDBOX_RATE_LIMIT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: YARDBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: YARDBOX_TLS_KEY)")
	fs.StringVar(&cfg.tokenSecret, "token-secret", "", "secret used to sign session tokens, random if unset (env: YARDBOX_TOKEN_SECRET)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of session tokens, 0 for no expiry (env: YARDBOX_TOKEN_TTL)")
	fs.BoolVar(&cfg.trustProxy, "trust-proxy", false, "rate limit by the X-Real-IP or CF-Connecting-IP header instead of the peer address (env: YARDBOX_TRUST_PROXY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: YARDBOX_VERSION)")

	pfs := cmd.PersistentFlags()

	pfs.StringVar(&cfg.localDB, "local-db", "", "play on this device against a local sqlite database instead of a server (env: YARDBOX_LOCAL_DB)")
	pfs.StringVar(&cfg.playerFile, "player-file", "", "file holding this device's player id (env: YARDBOX_PLAYER_FILE)")
	pfs.StringVarP(&cfg.server, "server", "s", "", "base url of the yardbox server (env: YARDBOX_SERVER)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: YARDBOX_VERBOSE)")

	bindEnv(v, fs)
	bindEnv(v, pfs)

	registerClientCommands(cfg, cmd)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("yardbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
