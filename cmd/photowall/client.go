package main

import (
	"photowall/internal/api"
	"photowall/internal/auth"
	"photowall/internal/config"
)

// newClient builds an API client for cfg.APIURL. The admin key comes from
// the flag, else from a plaintext configured key; a bcrypt hash cannot be
// presented and is skipped.
func newClient(cfg *config.Config, adminKeyFlag string) *api.Client {
	client := api.NewClient(cfg.APIURL)
	switch {
	case adminKeyFlag != "":
		client.WithAdminKey(adminKeyFlag)
	case cfg.AdminKey != "" && !auth.IsHashedSecret(cfg.AdminKey):
		client.WithAdminKey(cfg.AdminKey)
	}
	return client
}
