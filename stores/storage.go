package stores

import (
	"context"
	"fmt"
	"inkboard/core"
	"inkboard/stores/aws"
	"inkboard/stores/filesystem"
	"inkboard/stores/memory"
	"inkboard/stores/postgres"
	"inkboard/stores/sqlite"
	"os"

	"github.com/sirupsen/logrus"
)

// GetStore builds the drawing store selected by STORAGE_TYPE.
func GetStore(ctx context.Context) (core.DrawingStore, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	var (
		store core.DrawingStore
		err   error
	)

	storageField := logrus.Fields{
		"storage_type": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["base_path"] = basePath
		store, err = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "inkboard.db"
		}
		storageField["data_source_name"] = dataSourceName
		store, err = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucket_name"] = bucketName
		store, err = aws.NewStore(ctx, bucketName)
	case "postgres":
		dsn := os.Getenv("DB_URL")
		if dsn == "" {
			return nil, fmt.Errorf("DB_URL environment variable must be set for postgres storage type")
		}
		store, err = postgres.NewStore(dsn)
	default:
		store = memory.NewStore()
		storageField["storage_type"] = "in-memory"
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", storageType, err)
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}
