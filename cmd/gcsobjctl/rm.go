package main

import (
	"github.com/spf13/cobra"
)

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <bucket>/<object>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	bucket, name, err := splitBucketObject(args[0])
	if err != nil {
		return err
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

	if err := obj.Delete(ctx); err != nil {
		return err
	}

	statusf(flagQuiet, "deleted gs://%s/%s\n", bucket, name)

	return nil
}
