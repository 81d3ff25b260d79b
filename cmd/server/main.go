package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/engine"
	"github.com/t77yq/flowforge/internal/event"
	"github.com/t77yq/flowforge/internal/handler"
	"github.com/t77yq/flowforge/internal/model"
	"github.com/t77yq/flowforge/internal/monitor"
	"github.com/t77yq/flowforge/internal/registry"
	"github.com/t77yq/flowforge/internal/schedule"
	"github.com/t77yq/flowforge/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("app.name", "flowforge")
	viper.SetDefault("engine.max_concurrent_tasks", 10)
	viper.SetDefault("history.path", "task_runs.db")
	viper.SetDefault("handlers.base_dir", "/tmp/flowforge")
	viper.SetDefault("nats.urls", []string{nats.DefaultURL})
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("nats.connect_timeout", 5*time.Second)
	viper.SetDefault("metrics.interval", 15*time.Second)
	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("No config file found, using defaults", zap.Error(err))
	}

	// Connect to NATS
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Create event publisher
	events, err := event.NewPublisher(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	// Create run history storage
	history, err := storage.NewSQLiteRunHistory(logger, viper.GetString("history.path"))
	if err != nil {
		logger.Fatal("Failed to create run history storage", zap.Error(err))
	}
	defer history.Close()

	// Create registry and engine
	reg := registry.New(logger)
	wfEngine := engine.New(engine.Config{
		MaxConcurrentTasks: viper.GetInt("engine.max_concurrent_tasks"),
	}, reg, logger,
		engine.WithEventSink(events),
		engine.WithRunHistory(history),
	)

	// Register builtin task functions
	handler.RegisterBuiltins(reg, logger, viper.GetString("handlers.base_dir"))

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Start cron scheduler
	cronScheduler := schedule.NewCronScheduler(wfEngine, js, logger)
	if err := cronScheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}
	defer cronScheduler.Stop()

	// Start metrics collector and alert manager
	metrics := monitor.NewMetricsCollector(js, wfEngine, viper.GetDuration("metrics.interval"), logger)
	if err := metrics.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer metrics.Stop()

	alerts := monitor.NewAlertManager(js, logger)
	if err := alerts.Start(ctx); err != nil {
		logger.Fatal("Failed to start alert manager", zap.Error(err))
	}
	defer alerts.Stop()

	if err := alerts.AddRule(&model.AlertRule{
		Name:     "workflow-failures",
		Type:     model.AlertTypeWorkflowFailure,
		Severity: model.AlertSeverityError,
	}); err != nil {
		logger.Error("Failed to add alert rule", zap.Error(err))
	}

	// Build and execute an example workflow: fetch → process in parallel → combine
	if err := runExampleWorkflow(ctx, wfEngine, logger); err != nil {
		logger.Error("Example workflow failed", zap.Error(err))
	}

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Server shutting down gracefully")
}

// runExampleWorkflow submits a small diamond-shaped workflow through the
// builtin task functions.
func runExampleWorkflow(ctx context.Context, wfEngine *engine.Engine, logger *zap.Logger) error {
	workflow, err := wfEngine.CreateWorkflow("example-pipeline", "Example Pipeline",
		"Demonstrates dependent task execution", nil)
	if err != nil {
		return err
	}

	extract := model.NewTask("extract", "Extract input")
	extract.Handler = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return []float64{1, 2, 3, 4, 5}, nil
	}

	transform := model.NewTask("transform", "Transform numbers", "extract")
	transform.FuncName = "data_processing"
	transform.Args = map[string]interface{}{
		"operation": "transform",
		"input":     []interface{}{1.0, 2.0, 3.0, 4.0, 5.0},
		"factor":    2.0,
	}

	filter := model.NewTask("filter", "Filter numbers", "extract")
	filter.FuncName = "data_processing"
	filter.Args = map[string]interface{}{
		"operation": "filter",
		"input":     []interface{}{1.0, 2.0, 3.0, 4.0, 5.0},
		"min":       3.0,
	}

	combine := model.NewTask("combine", "Combine results", "transform", "filter")
	combine.FuncName = "data_processing"
	combine.Args = map[string]interface{}{
		"operation": "aggregate",
		"input":     []interface{}{2.0, 4.0, 6.0, 8.0, 10.0},
	}

	for _, task := range []*model.Task{extract, transform, filter, combine} {
		if err := workflow.AddTask(task); err != nil {
			return err
		}
	}

	summary, err := wfEngine.ExecuteWorkflow(ctx, workflow.ID)
	if err != nil {
		return err
	}

	logger.Info("Example workflow finished",
		zap.String("status", string(summary.Status)),
		zap.Int("completed_tasks", summary.CompletedTasks),
		zap.Int("failed_tasks", summary.FailedTasks),
		zap.Duration("duration", summary.Duration))

	return nil
}
