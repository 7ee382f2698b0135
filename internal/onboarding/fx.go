package onboarding

import (
	"github.com/humanline/humanline/internal/onboarding/repository"
	"github.com/humanline/humanline/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
