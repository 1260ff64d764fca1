package observability

import (
	"github.com/communityhq/billingcore/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Provide(metrics.NewSweepMetrics),
)
