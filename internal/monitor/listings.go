package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/exchange"
	"market-signal-alerts/internal/history"
	"market-signal-alerts/internal/notify"
	"market-signal-alerts/internal/storage"
	"market-signal-alerts/internal/task"
)

type listingSource interface {
	Announcements(ctx context.Context, pageSize int) ([]exchange.Announcement, error)
}

// ListingAlert is one new-listing announcement record. Announcements are
// discrete events with a stable article id, so fingerprint dedupe alone is
// enough; the tolerance stage does not apply.
type ListingAlert struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Title      string    `json:"title"`
	ReleasedAt time.Time `json:"releasedAt"`
	NotifiedAt time.Time `json:"notifiedAt"`
}

func (a ListingAlert) NotifiedTime() time.Time { return a.NotifiedAt }

func listingFingerprint(a ListingAlert) (string, error) {
	if a.ID == 0 {
		return "", errors.New("listing alert missing article id")
	}
	return strconv.FormatInt(a.ID, 10), nil
}

// listingConfig is the listings task's KV-stored config. Unlike the metric
// monitors it is a single object, not a per-symbol array.
type listingConfig struct {
	PageSize int `json:"pageSize,omitempty"`
	// Keywords, when set, keep only announcements whose title contains at
	// least one of them (case insensitive).
	Keywords []string `json:"keywords,omitempty"`
}

// ListingsOptions configure the new-listings monitor.
type ListingsOptions struct {
	ConfigKey    string
	HistoryKey   string
	Retention    time.Duration
	ChannelID    string
	MessageLimit int
	Now          func() time.Time
}

// Listings alerts on previously unseen exchange listing announcements.
type Listings struct {
	source listingSource
	opts   ListingsOptions
	store  *history.Store[ListingAlert]
	pub    *publisher[ListingAlert, ListingAlert]
	kv     storage.KV
	now    func() time.Time
	logger zerolog.Logger

	mu sync.Mutex
}

// NewListings wires the monitor over its collaborators.
func NewListings(source listingSource, kv storage.KV, notifier notify.Notifier, opts ListingsOptions, logger zerolog.Logger) *Listings {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With().Str("component", "monitor").Str("task", "listings").Logger()

	store := history.NewStore(kv, listingFingerprint, history.Options{
		Key:       opts.HistoryKey,
		Retention: opts.Retention,
		Now:       now,
	}, logger)

	m := &Listings{
		source: source,
		opts:   opts,
		store:  store,
		kv:     kv,
		now:    now,
		logger: logger,
	}
	m.pub = &publisher[ListingAlert, ListingAlert]{
		store:    store,
		sink:     newSink(notifier, opts.ChannelID, opts.MessageLimit, logger),
		toRecord: func(a ListingAlert) ListingAlert { return a },
		format:   formatListingAlerts,
		logger:   logger,
	}
	return m
}

func (m *Listings) Name() string { return "listings" }

func (m *Listings) loadConfig(ctx context.Context) (listingConfig, bool, error) {
	raw, err := m.kv.GetItem(ctx, m.opts.ConfigKey)
	if err != nil {
		return listingConfig{}, false, fmt.Errorf("read monitor config %s: %w", m.opts.ConfigKey, err)
	}
	if len(raw) == 0 {
		return listingConfig{}, false, nil
	}

	var cfg listingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return listingConfig{}, false, fmt.Errorf("parse monitor config %s: %w", m.opts.ConfigKey, err)
	}
	return cfg, true, nil
}

// Run executes one monitoring pass. Overlapping invocations are serialized.
func (m *Listings) Run(ctx context.Context) task.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, configured, err := m.loadConfig(ctx)
	if err != nil {
		return task.Error(task.Counts{}, err)
	}
	if !configured {
		return task.OK(task.Counts{}, "listings not configured")
	}

	counts := task.Counts{Processed: 1}
	articles, err := m.source.Announcements(ctx, cfg.PageSize)
	if err != nil {
		counts.Failed = 1
		m.logger.Warn().Err(err).Msg("announcement fetch failed")
		return resolve(counts, nil, "")
	}
	counts.Successful = 1

	var candidates []ListingAlert
	for _, article := range articles {
		if !matchesKeywords(article.Title, cfg.Keywords) {
			counts.Filtered++
			continue
		}
		candidates = append(candidates, ListingAlert{
			ID:         article.ID,
			Code:       article.Code,
			Title:      article.Title,
			ReleasedAt: article.ReleaseTime(),
			NotifiedAt: m.now(),
		})
	}

	deliveryErr := m.pub.publish(ctx, candidates, &counts)
	return resolve(counts, deliveryErr, "listings scan complete")
}

func matchesKeywords(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, keyword := range keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func formatListingAlerts(alerts []ListingAlert) string {
	lines := []string{"🆕 New listing announcements"}
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("%s (released %s)", a.Title, messageTime(a.ReleasedAt)))
	}
	return joinLines(lines)
}

var _ Monitor = (*Listings)(nil)
