package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <bucket>/<object>",
		Short: "Display object metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func runStat(cmd *cobra.Command, args []string) error {
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

	attrs, err := obj.GetMetadata(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(attrs)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "name:             gs://%s/%s\n", bucket, name)
	fmt.Fprintf(cmd.OutOrStdout(), "size:             %s\n", formatSize(attrs.Size))
	fmt.Fprintf(cmd.OutOrStdout(), "content-type:     %s\n", attrs.ContentType)
	fmt.Fprintf(cmd.OutOrStdout(), "content-encoding: %s\n", attrs.ContentEncoding)
	fmt.Fprintf(cmd.OutOrStdout(), "generation:       %d\n", attrs.Generation)
	fmt.Fprintf(cmd.OutOrStdout(), "metageneration:   %d\n", attrs.Metageneration)
	fmt.Fprintf(cmd.OutOrStdout(), "md5:              %s\n", attrs.MD5)
	fmt.Fprintf(cmd.OutOrStdout(), "crc32c:           %s\n", attrs.CRC32C)
	fmt.Fprintf(cmd.OutOrStdout(), "updated:          %s\n", formatTime(attrs.Updated))

	return nil
}
