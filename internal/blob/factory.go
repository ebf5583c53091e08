package blob

import (
	"context"
	"fmt"
	"os"

	s3store "rostercore/internal/infra/blob/s3"
)

// Open selects a blob.Store implementation using environment variables.
//
//	ROSTERCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	ROSTERCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("ROSTERCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("ROSTERCORE_BLOB_FS_ROOT"))
	case DriverS3:
		store, err := s3store.OpenFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		return WrapS3(store), nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
