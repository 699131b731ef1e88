package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/config"
	"restaurant-pos/internal/database"
	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/messaging"
	"restaurant-pos/internal/models"
	"restaurant-pos/internal/pricing"
	"restaurant-pos/internal/services/billing"
	"restaurant-pos/internal/services/kitchen"
	"restaurant-pos/internal/services/notification"
	"restaurant-pos/internal/services/order"
	"restaurant-pos/internal/services/table"
	"restaurant-pos/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		mode              = flag.String("mode", "", "Service mode (pos-service, kitchen-printer, notification-subscriber, migrate)")
		configPath        = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		port              = flag.Int("port", 0, "HTTP port (overrides config)")
		migrationsPath    = flag.String("migrations", "migrations", "Directory of tenant SQL migrations")
		tenant            = flag.String("tenant", "", "Tenant to migrate (migrate mode) or comma-separated tenants to show (notification-subscriber)")
		printerName       = flag.String("printer-name", "", "Printer name (required for kitchen-printer mode)")
		orderTypes        = flag.String("order-types", "", "Comma-separated order types this printer handles")
		queue             = flag.String("queue", messaging.KitchenQueue, "Kitchen queue the printer consumes")
		heartbeatInterval = flag.Int("heartbeat-interval", 30, "Heartbeat interval in seconds")
		prefetch          = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "pos-service":
		err = runPOSService(ctx, cfg, log)
	case "kitchen-printer":
		if *printerName == "" {
			log.Error("validation_failed", "printer-name is required for kitchen-printer mode", requestID, nil, nil)
			os.Exit(1)
		}
		var types []models.OrderType
		types, err = parseOrderTypes(*orderTypes)
		if err == nil {
			err = runKitchenPrinter(ctx, cfg, log, *printerName, *queue, types,
				time.Duration(*heartbeatInterval)*time.Second, *prefetch)
		}
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, log, strings.Split(*tenant, ","), *prefetch)
	case "migrate":
		err = runMigrate(ctx, cfg, log, *tenant, *migrationsPath)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runPOSService serves the HTTP API until ctx is cancelled.
func runPOSService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	taxRate, serviceRate, err := cfg.POS.Rates()
	if err != nil {
		return err
	}
	rates, err := pricing.NewFixedRates(taxRate, serviceRate)
	if err != nil {
		return err
	}
	tag, cur, err := cfg.POS.Locale()
	if err != nil {
		return err
	}

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	st := database.NewStore(db)
	publisher := messaging.NewPublisher(conn, log)

	orders := order.NewService(st, rates, log, order.WithCatalog(st), order.WithNotifier(publisher))
	tables := table.NewService(st, log, table.WithNotifier(publisher))
	kitchens := kitchen.NewService(st, log, kitchen.WithPublisher(publisher))
	bills := billing.NewService(st, rates, log, billing.WithNotifier(publisher))

	router := web.NewRouter(log,
		map[string]web.Pinger{"database": db, "rabbitmq": conn},
		order.NewHandler(orders, log),
		table.NewHandler(tables, log),
		kitchen.NewHandler(kitchens, log),
		billing.NewHandler(bills, log, tag, cur),
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("service_started", fmt.Sprintf("POS service started on %s", server.Addr), requestID, map[string]any{
			"addr":     server.Addr,
			"currency": cur.String(),
			"locale":   tag.String(),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("graceful_shutdown", "Shutting down HTTP server", requestID, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runKitchenPrinter prints tickets from one kitchen queue.
func runKitchenPrinter(ctx context.Context, cfg *config.Config, log *logger.Logger, name, queue string,
	types []models.OrderType, heartbeat time.Duration, prefetch int) error {
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, queue, "printer-"+name, prefetch)
	return kitchen.NewPrinter(name, types, heartbeat, consumer, os.Stdout, log).Run(ctx)
}

// runNotificationSubscriber prints status updates from the fanout queue.
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, tenants []string, prefetch int) error {
	conn, err := messaging.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "notification-subscriber", prefetch)
	return notification.NewSubscriber(consumer, os.Stdout, log, tenants...).Run(ctx)
}

// runMigrate provisions one tenant schema and applies pending migrations.
func runMigrate(ctx context.Context, cfg *config.Config, log *logger.Logger, tenant, migrationsPath string) error {
	if strings.TrimSpace(tenant) == "" {
		return errors.New("--tenant is required for migrate mode")
	}

	db, err := database.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateTenant(ctx, tenant, migrationsPath); err != nil {
		return err
	}
	log.Info("migrations_applied", fmt.Sprintf("Tenant %s is up to date", tenant), logger.GenerateRequestID(), map[string]any{
		"tenant":     tenant,
		"migrations": migrationsPath,
	})
	return nil
}

func parseOrderTypes(raw string) ([]models.OrderType, error) {
	var types []models.OrderType
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := models.ParseOrderType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
