package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/paygate-ng/paygate/cmd/handlers"
	"github.com/paygate-ng/paygate/internal/env"
	"github.com/paygate-ng/paygate/internal/services/cache"
	"github.com/paygate-ng/paygate/internal/services/detect"
	"github.com/paygate-ng/paygate/internal/services/driver"
	"github.com/paygate-ng/paygate/internal/services/driver/flutterwave"
	"github.com/paygate-ng/paygate/internal/services/driver/monnify"
	"github.com/paygate-ng/paygate/internal/services/driver/paypal"
	"github.com/paygate-ng/paygate/internal/services/driver/paystack"
	"github.com/paygate-ng/paygate/internal/services/events"
	"github.com/paygate-ng/paygate/internal/services/orchestrator"
	"github.com/paygate-ng/paygate/internal/services/registry"
	"github.com/paygate-ng/paygate/internal/services/requeuer"
	"github.com/paygate-ng/paygate/internal/services/status"
	"github.com/paygate-ng/paygate/internal/services/store"
	"github.com/paygate-ng/paygate/internal/services/webhook"
)

var providerConstructors = map[string]registry.Constructor{
	"paystack":    paystack.New,
	"flutterwave": flutterwave.New,
	"monnify":     monnify.New,
	"paypal":      paypal.New,
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	env.Load()

	redisClient := cache.NewRedisClient(env.Env.RedisAddr)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx); err != nil {
		cancelPing()
		log.Fatal().Str("component", "main").Err(err).Msg("redis is unreachable")
	}
	cancelPing()
	defer redisClient.Close()

	reg := buildRegistry()
	detector := buildDetector()
	normalizer := status.NewNormalizer()
	txStore := store.NewRedisTransactionStore(redisClient.Raw())

	orch := orchestrator.New(reg, normalizer, detector, redisClient, txStore, orchestrator.Config{
		Chain:                 env.Env.Chain(),
		HealthChecksEnabled:   env.Env.HealthChecksEnabled,
		TransactionLogEnabled: env.Env.TransactionLogEnabled,
		ContextTTL:            env.Env.ContextCacheTTL,
	})

	hub := events.NewHub()
	hub.Subscribe(func(event events.WebhookProcessed) {
		log.Info().
			Str("component", "events").
			Str("provider", event.Provider).
			Str("reference", event.Reference).
			Str("status", string(event.Status)).
			Msg("transaction status changed")
	})

	processor := webhook.NewProcessor(env.Env.WebhookWorkers, redisClient, redisClient, txStore, normalizer, orch, hub)
	processor.Start()
	defer processor.Stop()

	retryRequeuer := requeuer.New(redisClient.Raw(), webhook.QueueDelayed, webhook.QueueMain)
	retryRequeuer.Start()
	defer retryRequeuer.Stop()

	handlers.Orchestrator = orch
	handlers.Processor = processor

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post("/charges", handlers.HandlePostCharge)
	app.Get("/transactions/:reference/verify", handlers.HandleVerify)
	app.Post("/webhooks/:provider", handlers.HandleWebhook)
	app.Get("/health", handlers.HandleHealth)

	go func() {
		log.Info().Str("component", "main").Str("port", env.Env.Port).Msg("listening")
		if err := app.Listen(":" + env.Env.Port); err != nil {
			log.Fatal().Str("component", "main").Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Str("component", "main").Msg("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error().Str("component", "main").Err(err).Msg("server shutdown failed")
	}
}

// buildRegistry registers every built-in driver three ways: directly by
// provider name, under its convention implementation name, and with the
// configuration collected from `{PROVIDER}_*` environment variables.
// Extra providers named in the chain resolve through PAYMENT_IMPL_*
// overrides or the naming convention.
func buildRegistry() *registry.Registry {
	reg := registry.New()
	for name, ctor := range providerConstructors {
		reg.Register(name, ctor)
		reg.RegisterImplementation(registry.ConventionName(name), ctor)
		reg.SetConfig(name, providerConfig(name))
	}
	for _, name := range env.Env.Chain() {
		if _, builtin := providerConstructors[name]; builtin {
			continue
		}
		if impl := os.Getenv("PAYMENT_IMPL_" + strings.ToUpper(name)); impl != "" {
			reg.Configure(name, impl)
		}
		reg.SetConfig(name, providerConfig(name))
	}
	return reg
}

// providerConfig layers shared settings under the provider's own
// environment so every driver sees the global tolerance and timeout
// unless the provider overrides them.
func providerConfig(name string) driver.Config {
	config := driver.Config(env.ProviderConfig(name))
	if _, ok := config["webhook_tolerance"]; !ok {
		config["webhook_tolerance"] = env.Env.WebhookTolerance.String()
	}
	if _, ok := config["http_timeout"]; !ok {
		config["http_timeout"] = env.Env.ProviderHTTPTimeout.String()
	}
	return config
}

func buildDetector() *detect.Detector {
	detector := detect.NewDetector()
	for name := range providerConstructors {
		detector.RegisterProvider(name)
	}
	for _, name := range env.Env.Chain() {
		detector.RegisterProvider(name)
	}
	return detector
}
