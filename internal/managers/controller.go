package managers

import (
	"fmt"

	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	AddController(c Controller)
	StartControllers() error
}

// Controller is an interface that provides standard methods for the
// long-running controllers (scheduler, REST server)
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(logger *zap.SugaredLogger) ControllerManager {
	return &controllerManager{
		logger:      logger,
		controllers: make([]Controller, 0),
	}
}

type controllerManager struct {
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) AddController(con Controller) {
	c.controllers = append(c.controllers, con)
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		err := controller.StartController()
		if err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}
