// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/clock"
	"device-dispatch/internal/config"
	"device-dispatch/internal/discovery"
	"device-dispatch/internal/dispatcher"
	"device-dispatch/internal/events"
	"device-dispatch/internal/handler"
	"device-dispatch/internal/history"
	"device-dispatch/internal/metrics"
	"device-dispatch/internal/queue"
	"device-dispatch/internal/routes"
	"device-dispatch/internal/serializer"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	clock      clock.Clock
	bus        *events.Bus
	serializer *serializer.Serializer
	history    *history.History
	queue      *queue.Queue
	transports *transport.Registry
	dispatcher *dispatcher.Dispatcher
	scanners   *discovery.ScannerManager

	healthHandler    *handler.HealthHandler
	websocketHandler *handler.WebSocketHandler
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "device-dispatch")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.App)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		clock:  clock.System{},
	}

	if err := app.initializePipeline(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize dispatch pipeline: %w", err)
	}

	if err := app.initializeTransports(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize transports: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializePipeline builds the serializer, history, event bus and queue
func (app *Application) initializePipeline() error {
	app.serializer = serializer.New(serializer.Options{
		MaxSafePWMFrequency: app.config.Serializer.MaxSafePWMFrequency,
		PWMFrequencyLimit:   app.config.Serializer.PWMFrequencyLimit,
		MaxSafeMotorSpeed:   app.config.Serializer.MaxSafeMotorSpeed,
	}, app.logger)

	h, err := history.New(history.Options{
		PerDeviceCapacity: app.config.History.PerDeviceCapacity,
		GlobalCapacity:    app.config.History.GlobalCapacity,
	}, app.logger)
	if err != nil {
		return err
	}
	app.history = h

	app.bus = events.NewBus(app.config.Dispatcher.EventBuffer, app.logger)

	app.queue = queue.New(
		queue.WithClock(app.clock),
		queue.WithMaxSize(app.config.Queue.MaxSize),
		queue.WithObserver(dispatcher.QueueObserver(app.history, app.bus)),
	)

	app.logger.Info("Dispatch pipeline initialized",
		zap.Int("queue_max_size", app.config.Queue.MaxSize),
		zap.Int("history_per_device", app.config.History.PerDeviceCapacity),
		zap.Int("history_global", app.config.History.GlobalCapacity),
		zap.Int("families", len(app.serializer.Families())),
	)
	return nil
}

// initializeTransports registers a transport for every configured device
func (app *Application) initializeTransports() error {
	app.transports = transport.NewRegistry(app.logger)

	mqttDefaults := transport.MQTTDefaults{
		Broker:      app.config.MQTT.Broker,
		ClientID:    app.config.MQTT.ClientID,
		Username:    app.config.MQTT.Username,
		Password:    app.config.MQTT.Password,
		TopicPrefix: app.config.MQTT.TopicPrefix,
		QoS:         byte(app.config.MQTT.QoS),
		Timeout:     app.config.MQTT.Timeout,
	}

	for _, deviceConfig := range app.config.Devices {
		device := deviceConfig.ToModel()
		tr, err := transport.Create(device, mqttDefaults, app.logger)
		if err != nil {
			return err
		}
		app.transports.Register(device, tr)
	}

	app.logger.Info("Transports initialized successfully",
		zap.Int("devices", len(app.config.Devices)),
	)
	return nil
}

// initializeServer sets up the dispatcher, HTTP handlers and server
func (app *Application) initializeServer() {
	app.dispatcher = dispatcher.New(
		app.queue,
		app.serializer,
		app.history,
		app.transports,
		app.bus,
		dispatcher.Options{
			Workers:      app.config.Dispatcher.Workers,
			PollInterval: app.config.Dispatcher.PollInterval,
			SendTimeout:  app.config.Dispatcher.SendTimeout,
			Clock:        app.clock,
		},
		app.logger,
	)

	app.scanners = discovery.NewScannerManager(app.logger)
	app.scanners.RegisterScanner(discovery.NewSerialScanner(app.logger))
	app.scanners.RegisterScanner(discovery.NewUSBScanner(app.logger))

	app.healthHandler = handler.NewHealthHandler(app.config, app.queue, app.transports, app.logger)
	app.websocketHandler = handler.NewWebSocketHandler(app.bus, app.config.Security.AllowedOrigins, app.logger)

	routerManager := routes.NewRouter(app.config, app.logger, routes.Dependencies{
		Dispatcher: app.dispatcher,
		Queue:      app.queue,
		Serializer: app.serializer,
		History:    app.history,
		Transports: app.transports,
		Scanners:   app.scanners,
		Clock:      app.clock,
		Health:     app.healthHandler,
		WebSocket:  app.websocketHandler,
	})

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// startBackgroundServices starts the event bus, websocket fan-out and dispatcher
func (app *Application) startBackgroundServices() {
	go app.bus.Run(app.ctx)
	app.websocketHandler.Start(app.ctx)

	if app.config.Dispatcher.Enabled {
		go app.dispatcher.Run(app.ctx)
		app.healthHandler.SetReady(true)
	} else {
		app.logger.Warn("Dispatcher disabled, commands will stay queued")
	}

	app.logger.Info("Background services started")
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "device-dispatch")
	serviceLogger.LogServiceStop("shutdown signal received")

	app.healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// stops the dispatcher workers, bus and websocket fan-out
	app.cancel()

	app.transports.CloseAll()
	app.logger.Info("Transports closed",
		zap.Int("pending_commands", app.queue.Count()),
	)

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and background services until a shutdown signal
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown()

	return nil
}
