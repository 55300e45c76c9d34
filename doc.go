// Package gcsobject is a client library for the object-level operations of
// Google Cloud Storage's JSON API: streaming downloads with end-to-end
// integrity checking, simple and resumable uploads, signed URLs, signed POST
// policy documents, and object metadata/lifecycle operations.
//
// The package does not implement bucket enumeration, ACL CRUD, or OAuth2
// token acquisition; callers supply a transport.CredentialsProvider (see
// internal/transport) that performs authenticated requests and exposes the
// service-account signing identity.
package gcsobject
