// Copyright 2019 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

func newGcsClient(ctx context.Context, credentials []byte) (*storage.Client, error) {
	var opts []option.ClientOption
	if len(credentials) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentials))
	}
	return storage.NewClient(ctx, opts...)
}

func listGcsObjects(ctx context.Context, bucket, prefix string, credentials []byte) ([]string, error) {
	client, err := newGcsClient(ctx, credentials)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var names []string
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		objAttrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, objAttrs.Name)
	}
	return names, nil
}

// downloadGcsObjects copies bucket/prefix/name to dir/name for every name.
// Files already present in dir are kept.
func downloadGcsObjects(ctx context.Context, bucket, prefix string, names []string, dir string, credentials []byte) error {
	client, err := newGcsClient(ctx, credentials)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, name := range names {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		}
		n, err := downloadGcsObject(ctx, client.Bucket(bucket).Object(path.Join(prefix, name)), local)
		if err != nil {
			return fmt.Errorf("gs://%s/%s: %w", bucket, path.Join(prefix, name), err)
		}
		logger.Info(fmt.Sprintf("Staged %s (%s)", name, humanize.Bytes(uint64(n))), "module", "load")
	}
	return nil
}

func downloadGcsObject(ctx context.Context, obj *storage.ObjectHandle, local string) (int64, error) {
	objectReader, err := obj.NewReader(ctx)
	if err != nil {
		return 0, err
	}
	defer objectReader.Close()

	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, objectReader)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return n, os.Rename(tmp, local)
}
