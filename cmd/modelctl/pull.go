package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/pkg/checksum"
)

func newPullCmd(opts *globalOptions) *cobra.Command {
	var (
		mo   manifestOptions
		dest string
	)
	cmd := &cobra.Command{
		Use:   "pull REPO_ID",
		Short: "Download every file of a model and verify its sha256",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			mo.presign = true
			m, err := getManifest(cmd, c, args[0], mo)
			if err != nil {
				return err
			}
			if dest == "" {
				dest = filepath.FromSlash(args[0])
			}
			return pull(cmd.Context(), c, m, dest, cmd.OutOrStdout())
		},
	}
	mo.bind(cmd)
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "target directory (default: ./REPO_ID)")
	return cmd
}

// pull downloads the files of m below dest. Files already present with the
// recorded sha256 are skipped. Every file is attempted; the error reports how many failed.
func pull(ctx context.Context, c *client, m *services.Manifest, dest string, log io.Writer) error {
	failed := 0
	for _, f := range m.Files {
		if err := pullFile(ctx, c, f, dest, log); err != nil {
			failed++
			fmt.Fprintf(log, "FAIL %s: %v\n", f.RFilename, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(m.Files))
	}
	return nil
}

func pullFile(ctx context.Context, c *client, f services.FileEntry, dest string, log io.Writer) error {
	if !filepath.IsLocal(filepath.FromSlash(f.RFilename)) {
		return fmt.Errorf("refusing file name outside the target directory")
	}
	target := filepath.Join(dest, filepath.FromSlash(f.RFilename))

	if f.SHA256 != nil && upToDate(target, *f.SHA256) {
		fmt.Fprintf(log, "skip %s (up to date)\n", f.RFilename)
		return nil
	}
	if f.PresignedURL == nil {
		return fmt.Errorf("no download URL; the object may be missing from storage")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".modelctl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	sum := checksum.NewWriter()
	n, err := c.fetch(ctx, *f.PresignedURL, io.MultiWriter(tmp, sum))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if f.Size != nil && n != *f.Size {
		return fmt.Errorf("size mismatch: got %d bytes, want %d", n, *f.Size)
	}
	if f.SHA256 != nil {
		if err := sum.Verify(*f.SHA256); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}
	fmt.Fprintf(log, "ok   %s (%d bytes)\n", f.RFilename, n)
	return nil
}

func upToDate(path, sha string) bool {
	fh, err := os.Open(path)
	if err != nil {
		return false
	}
	defer fh.Close()
	ok, err := checksum.VerifySHA256(fh, sha)
	return err == nil && ok
}
