package sntp

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	defaultSamples        = 3
	defaultTimeout        = 5 * time.Second
	defaultQueryFrequency = 11 * time.Minute
	maxVariance           = 10 * time.Second
)

// NTPClient is the query surface used by Timestamper.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

type DefaultNTPClient struct{}

func (c *DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

// OffsetListener receives clock corrections.
type OffsetListener interface {
	SetOffset(offset time.Duration)
}

// Timestamper periodically measures the local clock offset.
type Timestamper struct {
	server    string
	client    NTPClient
	samples   int
	frequency time.Duration

	mu        sync.Mutex
	listeners []OffsetListener
	offset    time.Duration
}

// NewTimestamper creates a Timestamper for server. A nil client uses the network.
func NewTimestamper(server string, client NTPClient) *Timestamper {
	if client == nil {
		client = &DefaultNTPClient{}
	}
	return &Timestamper{
		server:    server,
		client:    client,
		samples:   defaultSamples,
		frequency: defaultQueryFrequency,
	}
}

func (ts *Timestamper) AddListener(l OffsetListener) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.listeners = append(ts.listeners, l)
}

// Offset returns the last accepted offset.
func (ts *Timestamper) Offset() time.Duration {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.offset
}

// Sync takes one round of samples and, if they agree, publishes the median.
func (ts *Timestamper) Sync(ctx context.Context) error {
	var deltas []time.Duration
	for i := 0; i < ts.samples; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := ts.client.QueryWithOptions(ts.server, ntp.QueryOptions{Timeout: defaultTimeout})
		if err != nil {
			log.WithError(err).WithField("server", ts.server).Debug("NTP query failed")
			continue
		}
		if err := validateResponse(resp); err != nil {
			log.WithError(err).WithField("server", ts.server).Debug("NTP response failed validation")
			continue
		}
		if len(deltas) > 0 && absDuration(resp.ClockOffset-deltas[0]) > maxVariance {
			log.WithFields(logger.Fields{
				"at":     "(Timestamper) Sync",
				"first":  deltas[0],
				"sample": resp.ClockOffset,
			}).Warn("NTP samples disagree")
			return oops.Errorf("ntp: inconsistent samples from %s", ts.server)
		}
		deltas = append(deltas, resp.ClockOffset)
	}
	if len(deltas) == 0 {
		return oops.Errorf("ntp: no usable samples from %s", ts.server)
	}

	offset := median(deltas)
	ts.mu.Lock()
	ts.offset = offset
	listeners := slices.Clone(ts.listeners)
	ts.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":      "(Timestamper) Sync",
		"server":  ts.server,
		"offset":  offset,
		"samples": len(deltas),
	}).Debug("clock offset updated")
	for _, l := range listeners {
		l.SetOffset(offset)
	}
	return nil
}

// Run syncs immediately and then every query period until ctx is done.
func (ts *Timestamper) Run(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.WithError(err).Warn("initial NTP sync failed")
	}
	ticker := time.NewTicker(ts.frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ts.Sync(ctx); err != nil {
				log.WithError(err).Warn("NTP sync failed")
			}
		}
	}
}

func median(deltas []time.Duration) time.Duration {
	sorted := slices.Clone(deltas)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
