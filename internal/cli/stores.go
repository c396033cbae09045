package cli

import (
	"context"

	"github.com/vvka-141/tripmerge/internal/blob"
	"github.com/vvka-141/tripmerge/internal/blob/core"
	"github.com/vvka-141/tripmerge/internal/config"
	"github.com/vvka-141/tripmerge/internal/db"
	"github.com/vvka-141/tripmerge/internal/warehouse"
	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

func openWarehouse(ctx context.Context, cfg *config.FileConfig, project, dataset string, logger tripmerge.Logger) (tripmerge.Warehouse, error) {
	driver, err := warehouse.ParseDriver(cfg.Warehouse.Driver)
	if err != nil {
		return nil, err
	}
	auth, err := db.ParseAuthMethod(cfg.Warehouse.Auth)
	if err != nil {
		return nil, err
	}
	return warehouse.Open(ctx, warehouse.Config{
		Driver:  driver,
		Project: project,
		Dataset: dataset,
		DSN:     cfg.Warehouse.DSN,
		Auth:    auth,
	}, logger)
}

func openStore(ctx context.Context, cfg *config.FileConfig, bucket string) (core.Store, error) {
	driver, err := blob.ParseDriver(cfg.Blob.Driver)
	if err != nil {
		return nil, err
	}
	return blob.Open(ctx, blob.Config{
		Driver:          driver,
		Bucket:          bucket,
		Root:            cfg.Blob.Root,
		Region:          cfg.Blob.Region,
		Endpoint:        cfg.Blob.Endpoint,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		PathStyle:       cfg.Blob.PathStyle,
	})
}
