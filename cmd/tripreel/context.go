package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tripreel/pkg/config"
	"tripreel/pkg/logging"
)

type commandContext struct {
	configFlag *string

	configOnce  sync.Once
	config      *config.Config
	configErr   error
	cleanupLogs func()
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration and starts logging, once.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := defaultConfigPath
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load config: %w", err)
			return
		}
		cleanup, err := logging.Init(&cfg.Log)
		if err != nil {
			c.configErr = fmt.Errorf("failed to initialize logging: %w", err)
			return
		}
		c.config = cfg
		c.cleanupLogs = cleanup
	})
	return c.config, c.configErr
}

func (c *commandContext) close() {
	if c.cleanupLogs != nil {
		c.cleanupLogs()
		c.cleanupLogs = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
