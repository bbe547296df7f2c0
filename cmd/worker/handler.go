package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/queue"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// eventHandler writes every domain event to the audit log
func eventHandler(logger *logging.Logger) queue.Handler {
	return func(_ context.Context, eventType string, body []byte) error {
		switch eventType {
		case queue.RoutingUsageRecorded:
			var event models.UsageEvent
			if err := json.Unmarshal(body, &event); err != nil {
				return fmt.Errorf("decode %s: %v: %w", eventType, err, queue.ErrPermanent)
			}
			logger.WithAccountID(event.AccountID).WithFields(map[string]interface{}{
				"query":        event.QueryText,
				"keywords":     event.Keywords,
				"result_count": event.ResultCount,
				"queries_used": event.QueriesUsed,
				"occurred_at":  event.Timestamp,
			}).Info("Usage recorded")

		case queue.RoutingPlanActivated:
			var event models.PlanActivatedEvent
			if err := json.Unmarshal(body, &event); err != nil {
				return fmt.Errorf("decode %s: %v: %w", eventType, err, queue.ErrPermanent)
			}
			logger.WithAccountID(event.AccountID).WithFields(map[string]interface{}{
				"plan":              event.PlanType,
				"allowed_queries":   event.AllowedQueries,
				"results_per_query": event.ResultsPerQuery,
				"amount_usd":        models.FormatUSD(event.AmountCents),
				"occurred_at":       event.Timestamp,
			}).Info("Plan activated")

		default:
			return fmt.Errorf("unknown event type %q: %w", eventType, queue.ErrPermanent)
		}
		return nil
	}
}
