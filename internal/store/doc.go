// Package store is the archive tree that holds converted and merged
// products.
//
// The tree is a gocloud blob bucket, so the same code serves a local
// directory, an S3 or GCS bucket, or an in-memory bucket in tests. Objects
// are laid out as
//
//	{variable}/{frequency}/{canonical name}.nc
//
// and a merged archive may carry a sibling manifest,
// {canonical name}.nc.manifest.json, recording what went into it.
//
// Writes go through blob writers, which make an object visible only once
// it is complete; replacing an object is therefore atomic for readers.
//
// # Usage
//
//	st, err := store.Open(ctx, "/data/era5")          // local directory
//	st, err := store.Open(ctx, "s3://era5-archive?region=eu-west-1")
//	defer st.Close()
//
//	names, err := st.List(ctx, store.Dir(desc))
//	err = st.Publish(ctx, "/tmp/work/x.nc", store.Key(desc, dataset.Year(1990)))
package store
