// File: cmd/driver.go
package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/browser"
	"github.com/xkilldash9x/marketpilot/internal/catalog"
	"github.com/xkilldash9x/marketpilot/internal/config"
)

// marketDriver is everything the commands need from the marketplace UI.
type marketDriver interface {
	schemas.Inbox
	schemas.FormDriver
	schemas.Authenticator
}

// driverFactory opens the UI layer. The returned cleanup is always safe to call.
type driverFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (marketDriver, func(), error)

func newBrowserDriver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (marketDriver, func(), error) {
	session, err := browser.NewSession(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close browser session.", zap.Error(err))
		}
	}
	return browser.NewMarketplace(session, cfg.Marketplace, cfg.Browser, logger), cleanup, nil
}

// signIn logs in with the configured credentials when the site asks for them.
func signIn(ctx context.Context, auth schemas.Authenticator, cfg *config.Config, logger *zap.Logger) error {
	did, err := auth.Login(ctx, cfg.Credentials.Email, cfg.Credentials.Password)
	if err != nil {
		return err
	}
	if did {
		logger.Info("Signed in.")
	}
	return nil
}

func openCatalog(cfg *config.Config, logger *zap.Logger) *catalog.Catalog {
	return catalog.Open(cfg.Catalog.Path, logger,
		catalog.WithPhotoDir(cfg.Catalog.PhotoDir),
		catalog.WithRepair(cfg.Catalog.RepairMalformed),
	)
}
