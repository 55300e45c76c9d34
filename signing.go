package gcsobject

import (
	"context"
	"errors"
	"time"

	"github.com/patrickml/gcsobject/internal/signer"
)

// SignedURLAction selects the HTTP verb a signed URL authorizes.
type SignedURLAction int

const (
	ActionRead SignedURLAction = iota
	ActionWrite
	ActionDelete
)

func (a SignedURLAction) toInternal() signer.Action {
	switch a {
	case ActionWrite:
		return signer.ActionWrite
	case ActionDelete:
		return signer.ActionDelete
	default:
		return signer.ActionRead
	}
}

// SignedURLRequest describes the URL to sign.
type SignedURLRequest struct {
	Action  SignedURLAction
	Expires time.Time

	ContentMD5       string
	ContentType      string
	ExtensionHeaders []string

	ResponseDisposition string
	ResponseType        string
	PromptSaveAs        string
}

// SignedURL produces a self-authenticating URL for this object. now is the
// time to validate Expires against; pass time.Now() in production, an
// injected time in tests.
func (o *ObjectHandle) SignedURL(ctx context.Context, req SignedURLRequest, now time.Time) (string, error) {
	internalReq := signer.URLRequest{
		Action:              req.Action.toInternal(),
		Expires:             req.Expires.Unix(),
		ContentMD5:          req.ContentMD5,
		ContentType:         req.ContentType,
		ExtensionHeaders:    req.ExtensionHeaders,
		ResponseDisposition: req.ResponseDisposition,
		ResponseType:        req.ResponseType,
		PromptSaveAs:        req.PromptSaveAs,
	}

	url, err := o.client.signer.SignedURL(ctx, o.id.Bucket(), o.id.Name(), internalReq, now.Unix())
	if err != nil {
		return "", translateSignerErr(err)
	}

	return url, nil
}

// SignedPolicyRequest describes the POST policy document to sign.
type SignedPolicyRequest struct {
	Expiration time.Time

	Equals     [][2]string
	StartsWith [][2]string

	ACL                string
	SuccessRedirect    string
	SuccessStatus      string
	ContentLengthRange *ContentLengthRange
}

// ContentLengthRange is the optional numeric-bounds policy condition.
type ContentLengthRange struct {
	Min, Max int64
}

// PolicyResult carries the policy JSON, its base64 encoding, and the
// base64-encoded RSA-SHA256 signature over that encoding.
type PolicyResult struct {
	String    string
	Base64    string
	Signature string
}

// SignedPolicy produces a signed POST policy document scoping uploads to
// this object's bucket and name. now is the time to validate Expiration
// against.
func (o *ObjectHandle) SignedPolicy(ctx context.Context, req SignedPolicyRequest, now time.Time) (*PolicyResult, error) {
	internalReq := signer.PolicyRequest{
		Bucket:          o.id.Bucket(),
		Key:             o.id.Name(),
		Expiration:      req.Expiration.Unix(),
		ACL:             req.ACL,
		SuccessRedirect: req.SuccessRedirect,
		SuccessStatus:   req.SuccessStatus,
	}

	for _, pair := range req.Equals {
		internalReq.Equals = append(internalReq.Equals, signer.FieldValue{Field: pair[0], Value: pair[1]})
	}

	for _, pair := range req.StartsWith {
		internalReq.StartsWith = append(internalReq.StartsWith, signer.FieldValue{Field: pair[0], Value: pair[1]})
	}

	if req.ContentLengthRange != nil {
		if req.ContentLengthRange.Min > req.ContentLengthRange.Max {
			return nil, ErrMalformedCondition
		}

		internalReq.HasContentLengthRange = true
		internalReq.ContentLengthRange = &signer.ContentLengthRange{
			Min: req.ContentLengthRange.Min,
			Max: req.ContentLengthRange.Max,
		}
	}

	result, err := o.client.signer.SignedPolicy(ctx, internalReq, now.Unix())
	if err != nil {
		return nil, translateSignerErr(err)
	}

	return &PolicyResult{String: result.String, Base64: result.Base64, Signature: result.Signature}, nil
}

func translateSignerErr(err error) error {
	if errors.Is(err, signer.ErrExpired) {
		return ErrExpiredSignature
	}

	return err
}
