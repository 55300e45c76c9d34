// Command gcsobjctl is a demonstration CLI wired to the gcsobject package:
// one GCS object operation per invocation via a single-binary cobra
// command tree, with no background daemon lifecycle.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
