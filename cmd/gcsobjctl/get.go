package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patrickml/gcsobject"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <bucket>/<object> <local-path>",
		Short: "Download an object",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}

	cmd.Flags().String("range", "", `byte range, e.g. "0-999" or "-100" for a tail request`)
	cmd.Flags().Bool("no-validate", false, "skip integrity validation")

	return cmd
}

func runGet(cmd *cobra.Command, args []string) error {
	bucket, name, err := splitBucketObject(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	client, appCfg, closeStore, err := newClient(ctx, transferHTTPClient())
	if err != nil {
		return err
	}
	defer closeStore()

	obj, err := client.Bucket(bucket).Object(name)
	if err != nil {
		return err
	}

	cfg := gcsobject.DownloadConfig{Validation: defaultValidation(appCfg)}

	if noValidate, _ := cmd.Flags().GetBool("no-validate"); noValidate {
		cfg.Validation = gcsobject.ValidationNone
	}

	if rangeStr, _ := cmd.Flags().GetString("range"); rangeStr != "" {
		start, end, parseErr := parseRangeFlag(rangeStr)
		if parseErr != nil {
			return parseErr
		}

		cfg.Start, cfg.End = start, end
		// Partial content has no whole-object digest to check against.
		cfg.Validation = gcsobject.ValidationNone
	}

	if err := obj.DownloadFile(ctx, args[1], cfg); err != nil {
		return err
	}

	statusf(flagQuiet, "downloaded gs://%s/%s -> %s\n", bucket, name, args[1])

	return nil
}

// parseRangeFlag parses "start-end" or "-N" (tail request) into the
// *int64 pair DownloadConfig expects.
func parseRangeFlag(s string) (start, end *int64, err error) {
	if strings.HasPrefix(s, "-") {
		n, convErr := strconv.ParseInt(s, 10, 64)
		if convErr != nil {
			return nil, nil, fmt.Errorf("invalid range %q: %w", s, convErr)
		}

		return nil, &n, nil
	}

	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid range %q: expected start-end", s)
	}

	startN, convErr := strconv.ParseInt(parts[0], 10, 64)
	if convErr != nil {
		return nil, nil, fmt.Errorf("invalid range start %q: %w", parts[0], convErr)
	}

	endN, convErr := strconv.ParseInt(parts[1], 10, 64)
	if convErr != nil {
		return nil, nil, fmt.Errorf("invalid range end %q: %w", parts[1], convErr)
	}

	return &startN, &endN, nil
}

// splitBucketObject splits "bucket/object/path" into (bucket, object path).
func splitBucketObject(s string) (bucket, name string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected <bucket>/<object>, got %q", s)
	}

	return parts[0], parts[1], nil
}
