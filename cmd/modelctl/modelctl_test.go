package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-registry/model-registry/internal/services"
	"github.com/model-registry/model-registry/pkg/checksum"
)

const (
	configBody  = `{"architectures":["LlamaForCausalLM"]}`
	weightsBody = "weights"
)

// registry is a fake registry API plus object store
func newRegistry(t *testing.T, files []services.FileEntry) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/v1/manifest/acme/tiny", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "mr_test" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid or revoked api key"}`))
			return
		}
		presign := r.URL.Query().Get("presign") == "true"
		out := make([]services.FileEntry, len(files))
		for i, f := range files {
			out[i] = f
			if presign && f.PresignedURL != nil {
				u := srv.URL + *f.PresignedURL
				out[i].PresignedURL = &u
			} else {
				out[i].PresignedURL = nil
			}
		}
		_ = json.NewEncoder(w).Encode(services.Manifest{Schema: services.ManifestSchema, RepoID: "acme/tiny", Files: out})
	})
	mux.HandleFunc("/objects/config.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "" {
			t.Error("api key sent to presigned URL")
		}
		_, _ = w.Write([]byte(configBody))
	})
	mux.HandleFunc("/objects/weights.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weightsBody))
	})
	return srv
}

func sha(s string) *string {
	w := checksumOf(s)
	return &w
}

func ptr[T any](v T) *T { return &v }

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--base-url", srv.URL, "--api-key", "mr_test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPull_DownloadsAndVerifies(t *testing.T) {
	srv := newRegistry(t, []services.FileEntry{
		{RFilename: "config.json", Size: ptr(int64(len(configBody))), SHA256: sha(configBody), PresignedURL: ptr("/objects/config.json")},
		{RFilename: "sub/weights.bin", SHA256: sha(weightsBody), PresignedURL: ptr("/objects/weights.bin")},
	})
	dest := t.TempDir()

	out, err := run(t, srv, "pull", "acme/tiny", "--dest", dest)
	require.NoError(t, err, out)

	got, err := os.ReadFile(filepath.Join(dest, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, configBody, string(got))
	got, err = os.ReadFile(filepath.Join(dest, "sub", "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, weightsBody, string(got))

	// a second pull finds both files up to date
	out, err = run(t, srv, "pull", "acme/tiny", "--dest", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "skip config.json")
	assert.Contains(t, out, "skip sub/weights.bin")
}

func TestPull_ChecksumMismatch(t *testing.T) {
	srv := newRegistry(t, []services.FileEntry{
		{RFilename: "config.json", SHA256: sha("something else"), PresignedURL: ptr("/objects/config.json")},
	})
	dest := t.TempDir()

	out, err := run(t, srv, "pull", "acme/tiny", "--dest", dest)
	require.Error(t, err)
	assert.Contains(t, out, "sha256 mismatch")
	assert.NoFileExists(t, filepath.Join(dest, "config.json"))
}

func TestPull_RejectsEscapingNames(t *testing.T) {
	srv := newRegistry(t, []services.FileEntry{
		{RFilename: "../evil", PresignedURL: ptr("/objects/config.json")},
	})
	dest := filepath.Join(t.TempDir(), "model")

	out, err := run(t, srv, "pull", "acme/tiny", "--dest", dest)
	require.Error(t, err)
	assert.Contains(t, out, "outside the target directory")
}

func TestPull_MissingURL(t *testing.T) {
	srv := newRegistry(t, []services.FileEntry{{RFilename: "gone.bin"}})

	out, err := run(t, srv, "pull", "acme/tiny", "--dest", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, out, "no download URL")
}

func TestManifest_Unsigned(t *testing.T) {
	srv := newRegistry(t, []services.FileEntry{
		{RFilename: "config.json", PresignedURL: ptr("/objects/config.json")},
	})

	out, err := run(t, srv, "manifest", "acme/tiny")
	require.NoError(t, err)

	var m services.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "hf-model-manifest/v1", m.Schema)
	require.Len(t, m.Files, 1)
	assert.Nil(t, m.Files[0].PresignedURL)
}

func TestAPIErrorDetail(t *testing.T) {
	srv := newRegistry(t, nil)

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--base-url", srv.URL, "--api-key", "wrong", "manifest", "acme/tiny"})
	err := cmd.Execute()

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid or revoked api key", apiErr.Detail)
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("MODELCTL_API_KEY", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODELCTL_API_KEY")
}

func checksumOf(s string) string {
	w := checksum.NewWriter()
	_, _ = w.Write([]byte(s))
	return w.Sum()
}
