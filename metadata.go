package gcsobject

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/patrickml/gcsobject/internal/objectid"
)

// objectPath returns the JSON API URL for id: "/{bucket}/o/{urlencode(name)}"
// under base, optionally scoped by generation.
func objectPath(base string, id objectid.ID) string {
	path := fmt.Sprintf("%s/%s/o/%s", base, id.Bucket(), id.EncodedName())

	if gen, ok := id.Generation(); ok {
		path += fmt.Sprintf("?generation=%d", gen)
	}

	return path
}

// Preconditions are the optional generation/metageneration guards accepted
// by Delete, SetMetadata, and Copy's destination: conditional writes
// independent of any generation an ObjectHandle is itself scoped to for
// reads.
type Preconditions = objectid.Preconditions

// appendQuery joins pairs onto url's query string, using "?" before a pair
// when url has no query yet and "&" once it has one.
func appendQuery(url string, pairs []string) string {
	for _, pair := range pairs {
		if strings.Contains(url, "?") {
			url += "&" + pair
		} else {
			url += "?" + pair
		}
	}

	return url
}

// GetMetadata fetches the object's current metadata and replaces
// ObjectHandle.Metadata()/Attrs() with it.
func (o *ObjectHandle) GetMetadata(ctx context.Context) (*ObjectAttrs, error) {
	resp, err := o.client.transport.Do(ctx, http.MethodGet, objectPath(o.client.jsonAPIBase, o.id), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var m map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&m); decErr != nil {
		return nil, fmt.Errorf("gcsobject: decoding metadata response: %w", decErr)
	}

	o.setMetadata(m)

	return o.Attrs(), nil
}

// SetMetadata PATCHes the object's metadata with patch, using JSON merge
// semantics: a null value unsets the corresponding field.
// Optional preconditions make the patch conditional on the object's
// current generation/metageneration.
func (o *ObjectHandle) SetMetadata(ctx context.Context, patch map[string]any, preconditions ...Preconditions) (*ObjectAttrs, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("gcsobject: encoding metadata patch: %w", err)
	}

	url := objectPath(o.client.jsonAPIBase, o.id)
	for _, pre := range preconditions {
		url = appendQuery(url, pre.Pairs())
	}

	resp, err := o.client.transport.Do(ctx, http.MethodPatch, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var m map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&m); decErr != nil {
		return nil, fmt.Errorf("gcsobject: decoding metadata response: %w", decErr)
	}

	o.setMetadata(m)

	return o.Attrs(), nil
}

// Delete removes the object. Optional preconditions make the
// delete conditional on the object's current generation/metageneration.
func (o *ObjectHandle) Delete(ctx context.Context, preconditions ...Preconditions) error {
	url := objectPath(o.client.jsonAPIBase, o.id)
	for _, pre := range preconditions {
		url = appendQuery(url, pre.Pairs())
	}

	resp, err := o.client.transport.Do(ctx, http.MethodDelete, url, nil, "")
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// CopyDestination is the destination of a Copy operation: a bare name in
// the source's own bucket, the source's own name in another bucket, or an
// arbitrary (bucket, name) pair. Construct with BareName, OtherBucket, or
// ToObject.
type CopyDestination interface {
	resolve(src objectid.ID) (objectid.ID, error)
}

type bareNameDestination string

// BareName targets name within the source object's own bucket.
func BareName(name string) CopyDestination { return bareNameDestination(name) }

func (d bareNameDestination) resolve(src objectid.ID) (objectid.ID, error) {
	return objectid.New(src.Bucket(), string(d))
}

type bucketDestination string

// OtherBucket targets the source object's own name within a different
// bucket.
func OtherBucket(bucket string) CopyDestination { return bucketDestination(bucket) }

func (d bucketDestination) resolve(src objectid.ID) (objectid.ID, error) {
	return objectid.New(string(d), src.Name())
}

type objectDestination struct{ id objectid.ID }

// ToObject targets an arbitrary (bucket, name) pair.
func ToObject(bucket, name string) CopyDestination {
	id, err := objectid.New(bucket, name)

	return objectDestination{id: id}.withErr(err)
}

func (d objectDestination) withErr(err error) CopyDestination {
	if err != nil {
		return invalidDestination{err: err}
	}

	return d
}

func (d objectDestination) resolve(objectid.ID) (objectid.ID, error) { return d.id, nil }

type invalidDestination struct{ err error }

func (d invalidDestination) resolve(objectid.ID) (objectid.ID, error) { return objectid.ID{}, d.err }

// Copy copies the object to destination and returns a handle to the new
// object. The copy is server-side; no bytes pass through this
// process. Optional preconditions make the write to the destination
// conditional on the destination object's current generation/metageneration.
func (o *ObjectHandle) Copy(ctx context.Context, destination CopyDestination, preconditions ...Preconditions) (*ObjectHandle, error) {
	if destination == nil {
		return nil, ErrMissingCopyDestination
	}

	destID, err := destination.resolve(o.id)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/o/%s/copyTo/b/%s/o/%s",
		o.client.jsonAPIBase, o.id.Bucket(), o.id.EncodedName(), destID.Bucket(), destID.EncodedName())

	if gen, ok := o.id.Generation(); ok {
		url += fmt.Sprintf("?sourceGeneration=%d", gen)
	}

	for _, pre := range preconditions {
		url = appendQuery(url, pre.Pairs())
	}

	resp, err := o.client.transport.Do(ctx, http.MethodPost, url, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var m map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&m); decErr != nil {
		return nil, fmt.Errorf("gcsobject: decoding copy response: %w", decErr)
	}

	dest := &ObjectHandle{client: o.client, id: destID}
	dest.setMetadata(m)

	return dest, nil
}

// Move copies the object to destination then deletes the source. This is a
// non-atomic composition: a failure after a successful copy but before the
// delete leaves the destination object already created and reports the
// delete error.
func (o *ObjectHandle) Move(ctx context.Context, destination CopyDestination, preconditions ...Preconditions) (*ObjectHandle, error) {
	dest, err := o.Copy(ctx, destination, preconditions...)
	if err != nil {
		return nil, err
	}

	if err := o.Delete(ctx); err != nil {
		return dest, fmt.Errorf("gcsobject: move: copy succeeded but delete of source failed: %w", err)
	}

	return dest, nil
}

// MakePrivateOptions configures MakePrivate.
type MakePrivateOptions struct {
	// Strict selects predefinedAcl=private instead of projectPrivate.
	Strict bool
}

// MakePrivate clears the object's ACL and applies a predefined ACL. The
// service rejects combining predefinedAcl with an explicit acl array, so
// the patch body always sets acl to null.
func (o *ObjectHandle) MakePrivate(ctx context.Context, opts MakePrivateOptions) error {
	predefined := "projectPrivate"
	if opts.Strict {
		predefined = "private"
	}

	url := appendQuery(objectPath(o.client.jsonAPIBase, o.id), []string{"predefinedAcl=" + predefined})

	body, err := json.Marshal(map[string]any{"acl": nil})
	if err != nil {
		return fmt.Errorf("gcsobject: encoding makePrivate patch: %w", err)
	}

	resp, err := o.client.transport.Do(ctx, http.MethodPatch, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var m map[string]any
	if decErr := json.NewDecoder(resp.Body).Decode(&m); decErr != nil {
		return fmt.Errorf("gcsobject: decoding makePrivate response: %w", decErr)
	}

	o.setMetadata(m)

	return nil
}

// MakePublic grants allUsers READER access by issuing the single ACL
// insert the operation needs directly against the JSON API.
func (o *ObjectHandle) MakePublic(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s/o/%s/acl", o.client.jsonAPIBase, o.id.Bucket(), o.id.EncodedName())

	body, err := json.Marshal(map[string]string{"entity": "allUsers", "role": "READER"})
	if err != nil {
		return fmt.Errorf("gcsobject: encoding makePublic ACL entry: %w", err)
	}

	resp, err := o.client.transport.Do(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}

	return resp.Body.Close()
}
