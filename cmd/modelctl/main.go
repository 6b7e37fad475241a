// Command modelctl is the client of the model registry: it lists models, prints
// manifests and pulls a model's files through presigned URLs, verifying each
// file's sha256 on the way.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultBaseURL = "http://localhost:8080"

type globalOptions struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func (o *globalOptions) client() (*client, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("an API key is required: set MODELCTL_API_KEY or pass --api-key")
	}
	return newClient(o.baseURL, o.apiKey, o.timeout), nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Browse and download models from a model registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	baseURL := os.Getenv("MODELCTL_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", baseURL, "registry base URL (env MODELCTL_BASE_URL)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("MODELCTL_API_KEY"), "API key (env MODELCTL_API_KEY)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "overall HTTP timeout per request")

	root.AddCommand(
		newListCmd(opts),
		newManifestCmd(opts),
		newPullCmd(opts),
		newChangesCmd(opts),
		newUsageCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
