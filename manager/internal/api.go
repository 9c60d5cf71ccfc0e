package internal

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corral-dev/corral/manager/internal/config"
	"github.com/corral-dev/corral/manager/internal/prom"
	"github.com/corral-dev/corral/manager/internal/scheduler"
	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/logger"
)

// apiServer implements the manager's HTTP handlers.
type apiServer struct {
	store   store.TaskStore
	nodes   *scheduler.Nodes
	clock   clockwork.Clock
	metrics *prom.Metrics
}

// newEcho builds the HTTP server for the manager's API. Metrics are served from gatherer when it
// is non-nil.
func newEcho(cfg *config.Config, api *apiServer, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logger.New()
	e.HTTPErrorHandler = jsonErrorHandler
	e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	e.Server.WriteTimeout = cfg.WriteTimeout.Duration()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(logger.RequestLogger())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET(apiv1.TasksPath, api.getScheduledTasks)
	e.POST(apiv1.TasksPath, api.postTask)
	e.GET(apiv1.TaskPath, api.getTask)
	e.PUT(apiv1.TaskStatusPath, api.putTaskStatus)
	e.GET(apiv1.ClusterTasksPath, api.getClusterTasks)

	e.GET(apiv1.NodesPath, api.getNodes)
	e.POST(apiv1.NodesPath, api.postNode)

	if gatherer != nil {
		e.GET(apiv1.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// jsonErrorHandler writes every error as {"message": ...}. Requests for a known path with the
// wrong method are answered like unknown paths.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code == http.StatusMethodNotAllowed {
		code, msg = http.StatusNotFound, http.StatusText(http.StatusNotFound)
	}
	if code >= 500 {
		c.Logger().Error(err)
	}
	if c.Response().Committed {
		return
	}

	// For the HEAD method, the server MUST NOT return a message-body in the response.
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, apiv1.ErrorResponse{Message: msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
