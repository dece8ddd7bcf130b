package stores

import (
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/config"
	"github.com/nothing010101/pfp/core"
	"github.com/nothing010101/pfp/stores/aws"
	"github.com/nothing010101/pfp/stores/filesystem"
	"github.com/nothing010101/pfp/stores/memory"
	"github.com/nothing010101/pfp/stores/sqlite"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.DocumentStore
	core.AssetCatalog
	core.WorkspaceRegistry
	core.ExportStore
}

func GetStore(cfg config.Config) Store {
	var store Store

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
		"maxExports":  cfg.MaxExports,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store = filesystem.NewStore(cfg.LocalStoragePath, cfg.MaxExports)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewStore(cfg.DataSourceName, cfg.MaxExports)
	case "s3":
		if cfg.S3BucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.S3BucketName
		store = aws.NewStore(cfg.S3BucketName, cfg.MaxExports)
	default:
		store = memory.NewStore(cfg.MaxExports)
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
