// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
)

// AppConfig is the complete daemon configuration. The YAML file decodes
// straight into it on top of the defaults, so absent keys keep their
// default value.
type AppConfig struct {
	Version string `yaml:"-"`

	Tenant   string `yaml:"tenant"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	Store         StoreConfig         `yaml:"store"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Priorities    PrioritiesConfig    `yaml:"priorities"`
	Workers       WorkersConfig       `yaml:"workers"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Sweeper       SweeperConfig       `yaml:"sweeper"`
	Bus           BusConfig           `yaml:"bus"`
	Outbox        OutboxConfig        `yaml:"outbox"`
	Storage       StorageConfig       `yaml:"storage"`
	Models        ModelsConfig        `yaml:"models"`
	Plugins       []PluginConfig      `yaml:"plugins"`
	Ops           OpsConfig           `yaml:"ops"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

// StoreConfig selects the request and entity store.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite or postgres
	Path    string `yaml:"path"`    // sqlite file, defaults to <dataDir>/fem.sqlite
	DSN     string `yaml:"dsn"`     // postgres connection string
}

type SchedulerConfig struct {
	Interval              time.Duration `yaml:"interval"`
	MaxBulkSize           int           `yaml:"maxBulkSize"`
	DelayBeforeProcessing time.Duration `yaml:"delayBeforeProcessing"`
}

// PrioritiesConfig is the priority given to events that carry none.
type PrioritiesConfig struct {
	Creation     model.Priority `yaml:"creation"`
	Update       model.Priority `yaml:"update"`
	Deletion     model.Priority `yaml:"deletion"`
	Notification model.Priority `yaml:"notification"`
	Reference    model.Priority `yaml:"reference"`
	Copy         model.Priority `yaml:"copy"`
}

// ByKind returns the configured priorities keyed by request kind. Unset
// levels are left out.
func (p PrioritiesConfig) ByKind() map[model.Kind]model.Priority {
	out := make(map[model.Kind]model.Priority, len(model.Kinds))
	for k, v := range map[model.Kind]model.Priority{
		model.KindCreation:     p.Creation,
		model.KindUpdate:       p.Update,
		model.KindDeletion:     p.Deletion,
		model.KindNotification: p.Notification,
		model.KindReference:    p.Reference,
		model.KindCopy:         p.Copy,
	} {
		if v != model.PriorityUnset {
			out[k] = v
		}
	}
	return out
}

type WorkersConfig struct {
	Count     int `yaml:"count"`
	QueueSize int `yaml:"queueSize"`
}

type NotificationsConfig struct {
	Active bool `yaml:"active"`
}

type SweeperConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RemoteTimeout time.Duration `yaml:"remoteTimeout"`
	PageSize      int           `yaml:"pageSize"`
	MaxPages      int           `yaml:"maxPages"`
}

// BusConfig selects the message bus carrying incoming events, lifecycle
// events, notifications and storage responses.
type BusConfig struct {
	Backend   string      `yaml:"backend"` // memory or redis
	BatchSize int         `yaml:"batchSize"`
	Redis     RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis Streams bus. Messages a consumer failed
// to handle are delivered again after RedeliverAfter.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	StreamPrefix   string        `yaml:"streamPrefix"`
	Group          string        `yaml:"group"`
	Consumer       string        `yaml:"consumer"`
	MaxLen         int64         `yaml:"maxLen"`
	RedeliverAfter time.Duration `yaml:"redeliverAfter"`
}

// OutboxConfig puts a badger-backed outbox between publishers and the bus.
type OutboxConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"` // defaults to <dataDir>/outbox
	RelayInterval time.Duration `yaml:"relayInterval"`
}

// StorageConfig points at the Storage Gateway. BreakerThreshold consecutive
// unavailable answers open the circuit breaker for BreakerReset.
type StorageConfig struct {
	BaseURL          string        `yaml:"baseURL"`
	Token            string        `yaml:"token"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"maxRetries"`
	RatePerSecond    int           `yaml:"ratePerSecond"`
	Burst            int           `yaml:"burst"`
	DeletionStorage  string        `yaml:"deletionStorage"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type ModelsConfig struct {
	File string `yaml:"file"`
}

// PluginConfig registers a feature generator under a business id.
type PluginConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"` // file
	Root string `yaml:"root"`
}

// OpsConfig configures the health and metrics listener. An empty
// ListenAddr disables it.
type OpsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	RateLimit  int    `yaml:"rateLimit"` // requests per minute and client, 0 disables
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc or http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}
