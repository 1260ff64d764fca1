package gateway

import (
	"github.com/communityhq/billingcore/internal/config"
	gatewaydomain "github.com/communityhq/billingcore/internal/gateway/domain"
	"github.com/communityhq/billingcore/internal/gateway/razorpay"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config) (gatewaydomain.Gateway, error) {
		return razorpay.New(razorpay.Config{
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			BaseURL:   cfg.Gateway.BaseURL,
		})
	}),
)
