package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/patrickml/gcsobject"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> <bucket>/<object>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(2),
		RunE:  runPut,
	}

	cmd.Flags().Bool("gzip", false, "gzip-compress the content before upload")
	cmd.Flags().Bool("simple", false, "use a single-shot multipart upload instead of the resumable protocol")
	cmd.Flags().String("content-type", "", "content type of the uploaded object")

	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	bucket, name, err := splitBucketObject(args[1])
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %q: %w", args[0], err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", args[0], err)
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

	cfg := gcsobject.UploadConfig{
		ContentType: contentTypeFlag(cmd),
		Validation:  defaultValidation(appCfg),
	}

	if gzip, _ := cmd.Flags().GetBool("gzip"); gzip {
		cfg.Gzip = true
	}

	if simple, _ := cmd.Flags().GetBool("simple"); simple {
		resumable := false
		cfg.Resumable = &resumable
	}

	done := reportProgress(args[0], info.Size())
	defer done()

	attrs, err := obj.Upload(ctx, f, info.Size(), cfg)
	if err != nil {
		return err
	}

	statusf(flagQuiet, "uploaded %s -> gs://%s/%s (generation %d)\n", args[0], bucket, name, attrs.Generation)

	return nil
}

func contentTypeFlag(cmd *cobra.Command) string {
	ct, _ := cmd.Flags().GetString("content-type")

	return ct
}

// reportProgress prints a one-line "uploading..." indicator when stdout is
// a terminal. Returns a cleanup func that ends the line with " done".
func reportProgress(path string, size int64) func() {
	if flagQuiet || !isatty.IsTerminal(os.Stdout.Fd()) {
		return func() {}
	}

	fmt.Fprintf(os.Stderr, "uploading %s (%s)...", path, formatSize(size))

	return func() {
		fmt.Fprintln(os.Stderr, " done")
	}
}
