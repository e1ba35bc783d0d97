package lyra

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lovi-cloud/lyra/config"
	"github.com/lovi-cloud/lyra/datastore/sqlite"
	"github.com/lovi-cloud/lyra/hooks"
	"github.com/lovi-cloud/lyra/httpd/gohttpd"
	"github.com/lovi-cloud/lyra/service"
	"github.com/lovi-cloud/lyra/system/gosystem"
)

// Run the lyra
func Run(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	var (
		configPath  string
		postInstall bool
		uninstall   bool
	)
	flags := flag.NewFlagSet(fmt.Sprintf("lyra (v%s rev:%s)", version, revision), flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to lyra config yaml")
	flags.BoolVar(&postInstall, "post-install", false, "prepare the system for the DHCP daemon and exit")
	flags.BoolVar(&uninstall, "pre-uninstall", false, "tear down before removal and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sys, err := gosystem.New()
	if err != nil {
		return err
	}

	if postInstall {
		hooks.PostInstall(ctx, sys, cfg, logger)
		return nil
	}
	if uninstall {
		hooks.PreUninstall(ctx, sys, cfg, logger)
		return nil
	}

	ds, err := sqlite.New(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer ds.Close()

	ctrl := service.New(cfg, sys, logger)

	eg, ctx := errgroup.WithContext(ctx)

	httpd, err := gohttpd.New(ds, ctrl, logger)
	if err != nil {
		return err
	}
	eg.Go(func() error {
		logger.Info("starting httpd", zap.String("addr", cfg.ListenAddr))
		return httpd.Serve(ctx, cfg.ListenAddr)
	})

	return eg.Wait()
}
