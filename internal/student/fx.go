package student

import (
	"github.com/smallbiznis/bursar/internal/student/repository"
	"github.com/smallbiznis/bursar/internal/student/service"
	"go.uber.org/fx"
)

var Module = fx.Module("student.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
