package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

var errConnNotInitialized = errors.New("NATS connection not initialized")

type NATSConfig struct {
	Servers       []string `mapstructure:"servers"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	TLS           struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATS publishes events on core NATS subjects.
type NATS struct {
	nc     conn
	prefix string
}

// NewNATS connects to the first reachable server in cfg.Servers.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}

	opts := defaultOptions(cfg)
	var (
		nc  *nats.Conn
		err error
	)
	for _, server := range cfg.Servers {
		nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}
	return newNATS(nc, cfg.SubjectPrefix), nil
}

func newNATS(nc conn, prefix string) *NATS {
	return &NATS{nc: nc, prefix: cmp.Or(prefix, "restless")}
}

// Subject returns the subject an event is published on.
func (p *NATS) Subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, e.Entity, e.Op)
}

func (p *NATS) Publish(ctx context.Context, e Event) error {
	if p.nc == nil {
		return errConnNotInitialized
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e), data); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return p.nc.FlushTimeout(timeout)
}

func (p *NATS) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func defaultOptions(c NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("restless"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		var tlsOpt nats.Option
		if c.TLS.CAFile != "" {
			tlsOpt = nats.RootCAs(c.TLS.CAFile)
		} else if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			tlsOpt = nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile)
		}
		if tlsOpt != nil {
			opts = append(opts, tlsOpt)
		}
	}
	return opts
}
