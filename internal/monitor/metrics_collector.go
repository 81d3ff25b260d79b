package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const engineMetricsSubject = "metrics.engine"

// StatsSource exposes engine introspection for sampling. Satisfied by
// *engine.Engine.
type StatsSource interface {
	RunningTasks() []string
}

// MetricsSample is one published metrics observation.
type MetricsSample struct {
	Timestamp    time.Time `json:"timestamp"`
	CPUUsage     float64   `json:"cpu_usage"`
	MemoryUsage  float64   `json:"memory_usage"`
	RunningTasks int       `json:"running_tasks"`
}

// MetricsCollector samples system load and engine activity and publishes
// the result to JetStream.
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	source   StatsSource
	interval time.Duration
	mu       sync.RWMutex
	last     *MetricsSample
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, source StatsSource, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector")

	// Create stream for metrics if it doesn't exist
	if _, err := c.js.AddStream(&nats.StreamConfig{
		Name:     "METRICS",
		Subjects: []string{"metrics.*"},
		Storage:  nats.FileStorage,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create metrics stream: %w", err)
	}

	go c.collectLoop(ctx)

	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics samples and publishes one observation
func (c *MetricsCollector) collectMetrics() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	sample := &MetricsSample{
		Timestamp:    time.Now(),
		CPUUsage:     cpuPercent[0],
		MemoryUsage:  memInfo.UsedPercent,
		RunningTasks: len(c.source.RunningTasks()),
	}

	c.mu.Lock()
	c.last = sample
	c.mu.Unlock()

	data, err := json.Marshal(sample)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish(engineMetricsSubject, data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", sample.CPUUsage),
		zap.Float64("memory_usage", sample.MemoryUsage),
		zap.Int("running_tasks", sample.RunningTasks))
}

// LastSample returns the most recent observation, or nil before the first
// collection.
func (c *MetricsCollector) LastSample() *MetricsSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
