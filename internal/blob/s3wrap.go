package blob

import (
	"context"
	"io"

	s3store "rostercore/internal/infra/blob/s3"
)

// s3Adapter bridges the infra s3 store onto the facade Store interface.
type s3Adapter struct {
	store *s3store.Store
}

// WrapS3 exposes an infra s3 store through the facade interface.
func WrapS3(store *s3store.Store) Store {
	return &s3Adapter{store: store}
}

func (a *s3Adapter) Driver() Driver { return DriverS3 }

func (a *s3Adapter) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	info, err := a.store.Put(ctx, key, r, opts.ContentType, opts.Metadata)
	if err != nil {
		return Info{}, err
	}
	return fromS3Info(info), nil
}

func (a *s3Adapter) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	return fromS3Info(info), rc, nil
}

func (a *s3Adapter) Delete(ctx context.Context, key string) (bool, error) {
	return a.store.Delete(ctx, key)
}

func (a *s3Adapter) List(ctx context.Context, prefix string) ([]Info, error) {
	infos, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Info, len(infos))
	for i, info := range infos {
		out[i] = fromS3Info(info)
	}
	return out, nil
}

func (a *s3Adapter) URLFor(ctx context.Context, key string) (string, error) {
	return a.store.URLFor(ctx, key)
}

func fromS3Info(info s3store.Info) Info {
	return Info{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		Metadata:     info.Metadata,
		LastModified: info.LastModified,
		URL:          info.URL,
	}
}
