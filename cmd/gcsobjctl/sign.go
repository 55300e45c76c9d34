package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickml/gcsobject"
)

func newSignURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-url <bucket>/<object>",
		Short: "Produce a signed URL for read/write/delete access",
		Args:  cobra.ExactArgs(1),
		RunE:  runSignURL,
	}

	cmd.Flags().String("action", "read", "one of: read, write, delete")
	cmd.Flags().Duration("ttl", 15*time.Minute, "how long the signed URL remains valid")

	return cmd
}

func runSignURL(cmd *cobra.Command, args []string) error {
	bucket, name, err := splitBucketObject(args[0])
	if err != nil {
		return err
	}

	action, _ := cmd.Flags().GetString("action")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	var act gcsobject.SignedURLAction

	switch action {
	case "read":
		act = gcsobject.ActionRead
	case "write":
		act = gcsobject.ActionWrite
	case "delete":
		act = gcsobject.ActionDelete
	default:
		return fmt.Errorf("invalid --action %q: expected read, write, or delete", action)
	}

	ctx := cmd.Context()

	client, _, closeStore, err := newClient(ctx, defaultHTTPClient())
	if err != nil {
		return err
	}
	defer closeStore()

	obj, err := client.Bucket(bucket).Object(name)
	if err != nil {
		return err
	}

	now := time.Now()

	url, err := obj.SignedURL(ctx, gcsobject.SignedURLRequest{
		Action:  act,
		Expires: now.Add(ttl),
	}, now)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), url)

	return nil
}

func newSignPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-policy <bucket>/<object>",
		Short: "Produce a signed POST policy document for browser uploads",
		Args:  cobra.ExactArgs(1),
		RunE:  runSignPolicy,
	}

	cmd.Flags().Duration("ttl", 15*time.Minute, "how long the policy remains valid")

	return cmd
}

func runSignPolicy(cmd *cobra.Command, args []string) error {
	bucket, name, err := splitBucketObject(args[0])
	if err != nil {
		return err
	}

	ttl, _ := cmd.Flags().GetDuration("ttl")

	ctx := cmd.Context()

	client, _, closeStore, err := newClient(ctx, defaultHTTPClient())
	if err != nil {
		return err
	}
	defer closeStore()

	obj, err := client.Bucket(bucket).Object(name)
	if err != nil {
		return err
	}

	now := time.Now()

	result, err := obj.SignedPolicy(ctx, gcsobject.SignedPolicyRequest{
		Expiration: now.Add(ttl),
	}, now)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "policy:    %s\n", result.Base64)
	fmt.Fprintf(cmd.OutOrStdout(), "signature: %s\n", result.Signature)

	return nil
}
