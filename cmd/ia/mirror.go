package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bigbass1997/iars"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// mirrorItem copies every file in the item into the bucket under
// the given key prefix. Files whose destination object already
// exists with the same size are skipped unless force is set.
// Returns the number of files copied.
func mirrorItem(ctx context.Context, it *iars.Item, bucket *blob.Bucket, prefix string, force bool, progress io.Writer) (int, error) {
	files, err := it.List()
	if err != nil {
		return 0, err
	}

	copied := 0
	for i := range files {
		f := &files[i]
		key := prefix + f.Path

		if !force {
			attrs, err := bucket.Attributes(ctx, key)
			switch {
			case err == nil && attrs.Size == f.Size:
				fmt.Fprintf(progress, "skip  %s\n", f.Path)
				continue
			case err != nil && gcerrors.Code(err) != gcerrors.NotFound:
				return copied, fmt.Errorf("stat %s: %w", key, err)
			}
		}

		if err := mirrorFile(ctx, it, bucket, f.Path, key); err != nil {
			return copied, err
		}
		fmt.Fprintf(progress, "copy  %s (%d bytes)\n", f.Path, f.Size)
		copied++
	}
	return copied, nil
}

func mirrorFile(ctx context.Context, it *iars.Item, bucket *blob.Bucket, path, key string) error {
	f, err := it.Download(path)
	if err != nil {
		return err
	}
	defer f.Body.Close()

	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open %s for writing: %w", key, err)
	}

	if _, err := io.Copy(w, f.Body); err != nil {
		w.Close()
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return w.Close()
}
