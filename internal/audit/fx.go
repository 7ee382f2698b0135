package audit

import (
	"github.com/humanline/humanline/internal/audit/repository"
	"github.com/humanline/humanline/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
