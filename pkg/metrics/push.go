package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job one-shot commands push under
const Job = "vault_zap"

// Push sends every registered metric to the Pushgateway at url, grouped by
// command. Commands that exit before a scrape use it instead of /metrics.
func Push(ctx context.Context, url, command string) error {
	return PushFrom(ctx, prometheus.DefaultGatherer, url, command)
}

// PushFrom pushes the metrics of g
func PushFrom(ctx context.Context, g prometheus.Gatherer, url, command string) error {
	err := push.New(url, Job).
		Gatherer(g).
		Grouping("command", command).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
