package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IliaW/site-auditor/config"
	"github.com/IliaW/site-auditor/internal"
	"github.com/IliaW/site-auditor/internal/model"
	"github.com/IliaW/site-auditor/internal/resolver"
	"github.com/bradfitz/gomemcache/memcache"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type CachedClient interface {
	RecentlyAudited(siteURL string) bool
	MarkAudited(siteURL string, n *model.AuditNotification)
	Close()
}

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
}

func NewMemcachedClient(cacheConfig *config.CacheConfig) *MemcachedClient {
	slog.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	err := ss.SetServers(cacheConfig.Servers...)
	if err != nil {
		slog.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
	}
	slog.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to memcached!")

	return c
}

func (mc *MemcachedClient) RecentlyAudited(siteURL string) bool {
	key := siteKey(siteURL)
	_, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.Warn("failed to read audit marker.", slog.String("key", key), slog.String("err", err.Error()))
		}
		return false
	}
	return true
}

// MarkAudited stores the latest notification for the site. Forced audits hold the marker for one minute.
func (mc *MemcachedClient) MarkAudited(siteURL string, n *model.AuditNotification) {
	ttl := mc.cfg.TtlForSite
	if n.Force {
		ttl = time.Minute
	}
	key := siteKey(siteURL)
	if err := mc.set(key, n, int32(ttl.Seconds())); err != nil {
		slog.Error("failed to save audit marker to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	slog.Debug("audit marker saved to cache.", slog.String("key", key), slog.String("url", siteURL))
}

func (mc *MemcachedClient) Close() {
	slog.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		slog.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) set(key string, value any, expiration int32) error {
	byteValue, err := json.Marshal(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        key,
		Value:      byteValue,
		Expiration: expiration,
	}

	return mc.client.Set(item)
}

func siteKey(siteURL string) string {
	return fmt.Sprintf("%s-audit", internal.HashURL(resolver.Normalize(siteURL)))
}
