package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/compozy/docqa/engine/infra/monitoring/metrics"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/compozy/docqa/pkg/version"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IndexSizeFunc reports the number of chunks currently held by the vector index.
type IndexSizeFunc func(ctx context.Context) (int, error)

type systemInstruments struct {
	buildInfo     metric.Float64Gauge
	uptime        metric.Float64ObservableGauge
	indexSize     metric.Int64ObservableGauge
	registrations []metric.Registration
	startedAt     time.Time
}

var (
	systemMu sync.Mutex
	system   *systemInstruments
)

// InitSystemMetrics registers build info and uptime on meter. Repeated calls
// keep the first registration.
func InitSystemMetrics(ctx context.Context, meter metric.Meter) {
	systemMu.Lock()
	defer systemMu.Unlock()
	if system != nil {
		return
	}
	log := logger.FromContext(ctx)
	inst := &systemInstruments{startedAt: time.Now()}
	var err error
	inst.buildInfo, err = meter.Float64Gauge(
		metrics.MetricName("build_info"),
		metric.WithDescription("Build information (value=1)"),
	)
	if err != nil {
		log.Error("Failed to create build info gauge", "error", err)
	}
	inst.uptime, err = meter.Float64ObservableGauge(
		metrics.MetricName("uptime_seconds"),
		metric.WithDescription("Service uptime in seconds"),
	)
	if err != nil {
		log.Error("Failed to create uptime gauge", "error", err)
	} else {
		reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveFloat64(inst.uptime, time.Since(inst.startedAt).Seconds())
			return nil
		}, inst.uptime)
		if err != nil {
			log.Error("Failed to register uptime callback", "error", err)
		} else {
			inst.registrations = append(inst.registrations, reg)
		}
	}
	system = inst
	recordBuildInfo(ctx, inst)
}

// RegisterIndexSize exposes the vector index chunk count as a gauge that is
// sampled on every scrape.
func (s *Service) RegisterIndexSize(ctx context.Context, size IndexSizeFunc) {
	if !s.initialized || size == nil {
		return
	}
	systemMu.Lock()
	defer systemMu.Unlock()
	if system == nil || system.indexSize != nil {
		return
	}
	log := logger.FromContext(ctx)
	gauge, err := s.meter.Int64ObservableGauge(
		metrics.MetricName("index_chunks"),
		metric.WithDescription("Chunks currently stored in the vector index"),
	)
	if err != nil {
		log.Error("Failed to create index size gauge", "error", err)
		return
	}
	reg, err := s.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := size(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("Index size unavailable", "error", err)
			return nil
		}
		o.ObserveInt64(gauge, int64(n))
		return nil
	}, gauge)
	if err != nil {
		log.Error("Failed to register index size callback", "error", err)
		return
	}
	system.indexSize = gauge
	system.registrations = append(system.registrations, reg)
}

func recordBuildInfo(ctx context.Context, inst *systemInstruments) {
	if inst.buildInfo == nil {
		return
	}
	info := version.Get()
	inst.buildInfo.Record(ctx, 1, metric.WithAttributes(
		attribute.String("version", info.Version),
		attribute.String("commit_hash", info.CommitHash),
		attribute.String("go_version", runtime.Version()),
	))
	logger.FromContext(ctx).Debug("System metrics initialized", "version", info.Version, "commit", info.CommitHash)
}

// ResetSystemMetricsForTesting drops the registered system instruments.
func ResetSystemMetricsForTesting() {
	systemMu.Lock()
	defer systemMu.Unlock()
	if system == nil {
		return
	}
	for _, reg := range system.registrations {
		if err := reg.Unregister(); err != nil {
			logger.Error("Failed to unregister system callback during reset", "error", err)
		}
	}
	system = nil
}
