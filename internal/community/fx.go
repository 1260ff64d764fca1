package community

import (
	"github.com/communityhq/billingcore/internal/community/repository"
	"github.com/communityhq/billingcore/internal/community/service"
	"go.uber.org/fx"
)

var Module = fx.Module("community.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
