package gcsobject

import (
	"strconv"
	"time"

	"github.com/patrickml/gcsobject/internal/objectid"
)

// ObjectHandle identifies a remote object and orchestrates every operation
// against it: download, upload, metadata, and lifecycle. It is immutable
// except for metadata, which is refreshed after every metadata-returning
// call.
type ObjectHandle struct {
	client *Client
	id     objectid.ID

	metadata map[string]any
	attrs    *ObjectAttrs
}

func newObjectHandle(client *Client, bucket, name string) (*ObjectHandle, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}

	if name == "" {
		return nil, ErrMissingName
	}

	id, err := objectid.New(bucket, name)
	if err != nil {
		return nil, err
	}

	return &ObjectHandle{client: client, id: id}, nil
}

// Generation returns a copy of the handle scoped to a specific object
// generation. All operations on the copy (read, write preconditions,
// delete, copy source) carry that generation.
func (o *ObjectHandle) Generation(generation int64) (*ObjectHandle, error) {
	id, err := o.id.WithGeneration(generation)
	if err != nil {
		return nil, err
	}

	cp := *o
	cp.id = id

	return &cp, nil
}

// Bucket returns the bucket name.
func (o *ObjectHandle) Bucket() string { return o.id.Bucket() }

// Name returns the object name.
func (o *ObjectHandle) Name() string { return o.id.Name() }

// Metadata returns the raw JSON-value mapping last returned by the server,
// or nil if no metadata-returning call has been made yet.
func (o *ObjectHandle) Metadata() map[string]any { return o.metadata }

// Attrs returns the typed projection of Metadata(), derived on every
// metadata-returning call. Returns nil before any such call has completed.
func (o *ObjectHandle) Attrs() *ObjectAttrs { return o.attrs }

func (o *ObjectHandle) setMetadata(m map[string]any) {
	o.metadata = m
	o.attrs = newObjectAttrs(m)
}

// ObjectAttrs is a typed, read-only view over ObjectHandle.Metadata().
type ObjectAttrs struct {
	Bucket          string
	Name            string
	ContentType     string
	ContentEncoding string
	Size            int64
	MD5             string
	CRC32C          string
	Generation      int64
	Metageneration  int64
	Updated         time.Time
}

func newObjectAttrs(m map[string]any) *ObjectAttrs {
	if m == nil {
		return nil
	}

	a := &ObjectAttrs{
		Bucket:          stringField(m, "bucket"),
		Name:            stringField(m, "name"),
		ContentType:     stringField(m, "contentType"),
		ContentEncoding: stringField(m, "contentEncoding"),
		MD5:             stringField(m, "md5Hash"),
		CRC32C:          stringField(m, "crc32c"),
	}

	a.Size = int64Field(m, "size")
	a.Generation = int64Field(m, "generation")
	a.Metageneration = int64Field(m, "metageneration")

	if updated := stringField(m, "updated"); updated != "" {
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			a.Updated = t
		}
	}

	return a
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key].(string)
	if !ok {
		return ""
	}

	return v
}

// int64Field parses fields the JSON API serializes as strings (size,
// generation, metageneration are all int64s encoded as JSON strings to
// avoid float64 precision loss) as well as the rare numeric encoding.
func int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}

		return n
	case float64:
		return int64(v)
	default:
		return 0
	}
}
