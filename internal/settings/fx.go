package settings

import (
	"github.com/smallbiznis/claimward/internal/cache"
	"github.com/smallbiznis/claimward/internal/settings/domain"
	"github.com/smallbiznis/claimward/internal/settings/service"
	"github.com/smallbiznis/claimward/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("settings",
	fx.Provide(
		cache.NewUpkeepConfigCache,
		func(db *gorm.DB) repository.Repository[domain.UpkeepConfig] {
			return repository.ProvideStore[domain.UpkeepConfig](db)
		},
		service.NewService,
	),
)
