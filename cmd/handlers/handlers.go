package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/paygate-ng/paygate/internal/dto"
	"github.com/paygate-ng/paygate/internal/models"
	"github.com/paygate-ng/paygate/internal/services/orchestrator"
	"github.com/paygate-ng/paygate/internal/services/webhook"
)

var (
	Orchestrator *orchestrator.Orchestrator
	Processor    *webhook.Processor
)

// HandlePostCharge initializes a payment across the provider chain. An
// optional "providers" list in the body overrides the configured chain
// for this request only.
func HandlePostCharge(c *fiber.Ctx) error {
	var body dto.ChargeRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "malformed request body"})
	}

	req, err := models.NewChargeRequest(body.Amount, body.Currency, body.Email)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	req.Reference = body.Reference
	req.CallbackURL = body.CallbackURL
	req.IdempotencyKey = body.IdempotencyKey
	req.Metadata = body.Metadata
	req.Channels = body.Channels
	req.Customer = body.Customer

	resp, err := Orchestrator.Charge(c.Context(), req, body.Providers...)
	if err != nil {
		var aggregate *orchestrator.AggregateError
		if errors.As(err, &aggregate) {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
				Error:     "all providers failed",
				Providers: aggregate.Messages(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleVerify re-checks a transaction. A "provider" query parameter pins
// verification to that provider and skips context resolution.
func HandleVerify(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "reference is required"})
	}

	resp, err := Orchestrator.Verify(c.Context(), reference, c.Query("provider"))
	if err != nil {
		var aggregate *orchestrator.AggregateError
		if errors.As(err, &aggregate) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error:     "transaction could not be verified",
				Providers: aggregate.Messages(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(resp)
}

// HandleWebhook authenticates an incoming delivery and enqueues it. The
// payload is never parsed before its signature checks out.
func HandleWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	drv, err := Orchestrator.Driver(provider)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "unknown provider"})
	}

	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	if !drv.ValidateWebhook(headers, body) {
		log.Warn().Str("component", "handlers").Str("provider", provider).Msg("webhook rejected, signature invalid")
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "webhook signature verification failed"})
	}

	job := models.NewWebhookJob(provider, body)
	if err := Processor.Enqueue(c.Context(), job); err != nil {
		log.Error().Str("component", "handlers").Str("provider", provider).Err(err).Msg("failed to enqueue webhook")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to enqueue webhook"})
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// HandleHealth reports per-provider health and supported currencies.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(Orchestrator.Health(c.Context()))
}
