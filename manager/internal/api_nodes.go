package internal

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/model"
)

func (a *apiServer) getNodes(c echo.Context) error {
	return c.JSON(http.StatusOK, a.nodes.List())
}

// postNode registers a worker's node, or refreshes it if the worker restarted.
func (a *apiServer) postNode(c echo.Context) error {
	var req apiv1.RegisterNodeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid node: "+err.Error())
	}
	candidate := model.NewNode(req.Name, req.TotalMemory, req.TotalCPU)
	if err := check.Validate(candidate); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	node := a.nodes.Register(req.Name, req.Address, req.TotalMemory, req.TotalCPU)
	log.WithFields(log.Fields{
		"node-id": node.ID,
		"address": node.Address,
		"memory":  node.TotalMemory,
		"cpu":     node.TotalCPU,
	}).Info("node registered")
	return c.JSON(http.StatusCreated, node)
}
