package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"veridoc/internal/config"
	"veridoc/internal/jobs"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return addr
		}
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIBind
	}
	return ""
}

// dialClient probes the daemon API. A nil client with nil error means no
// daemon is reachable and the caller should fall back to the store.
func (c *commandContext) dialClient() (*apiClient, error) {
	addr := c.apiAddress()
	if addr == "" {
		return nil, nil
	}
	client := newAPIClient(addr)
	if !client.reachable() {
		return nil, nil
	}
	return client, nil
}

// withAccess runs fn against the daemon API when one is running, otherwise
// against a directly opened store. Exactly one of client and store is non-nil.
func (c *commandContext) withAccess(fn func(client *apiClient, store *jobs.Store) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	if client != nil {
		return fn(client, nil)
	}

	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(nil, store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for p := cmd; p != nil; p = p.Parent() {
		if p.Annotations != nil && p.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
