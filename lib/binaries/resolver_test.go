package binaries

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv neutralizes resolver environment overrides for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvFirecrackerBin, "")
	t.Setenv(EnvJailerBin, "")
	t.Setenv(EnvBundleDir, "")
	t.Setenv(EnvRelease, "")
}

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
}

func TestResolveBundledOnly(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	binaryPath := filepath.Join(root, targetKeys()[0], "firecracker")
	writeExecutable(t, binaryPath)

	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = root

	resolved, err := ResolveFirecracker(policy)
	require.NoError(t, err)
	assert.Equal(t, binaryPath, resolved.Path)
	assert.Equal(t, SourceBundled, resolved.Source)
	assert.False(t, resolved.Verified)
}

func TestReleaseLayoutResolution(t *testing.T) {
	clearEnv(t)
	target, supported := releaseTarget()
	if !supported {
		t.Skipf("no release artifacts for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	root := t.TempDir()
	version := "v1.12.1"
	binaryPath := filepath.Join(root,
		fmt.Sprintf("release-%s-%s", version, target),
		fmt.Sprintf("firecracker-%s-%s", version, target))
	writeExecutable(t, binaryPath)

	policy := DefaultPolicy()
	policy.Mode = BundledThenSystem
	policy.BundleRoot = root
	policy.ReleaseVersion = version

	resolved, err := ResolveFirecracker(policy)
	require.NoError(t, err)
	assert.Equal(t, binaryPath, resolved.Path)
	assert.Equal(t, SourceBundled, resolved.Source)
}

func TestChecksumMismatch(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	binaryPath := filepath.Join(root, "firecracker")
	writeExecutable(t, binaryPath)

	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = root
	policy.FirecrackerSHA256 = "0000000000000000000000000000000000000000000000000000000000000000"

	_, err := ResolveFirecracker(policy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, KindFirecracker, mismatch.Kind)
	assert.Equal(t, binaryPath, mismatch.Path)
	assert.Equal(t, SourceBundled, mismatch.Source)
}

func TestChecksumMatch(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	binaryPath := filepath.Join(root, "firecracker")
	writeExecutable(t, binaryPath)

	sum := sha256.Sum256([]byte("#!/bin/sh\n"))

	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = root
	policy.FirecrackerSHA256 = "sha256:" + hex.EncodeToString(sum[:])

	resolved, err := ResolveFirecracker(policy)
	require.NoError(t, err)
	assert.True(t, resolved.Verified)
}

func TestSystemOnlyNeverTouchesBundled(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeExecutable(t, filepath.Join(root, "firecracker"))
	t.Setenv("PATH", t.TempDir())

	policy := DefaultPolicy()
	policy.Mode = SystemOnly
	policy.BundleRoot = root

	_, err := ResolveFirecracker(policy)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	for _, searched := range notFound.Searched {
		assert.NotContains(t, searched, root)
	}
}

func TestNotFoundEnumeratesTemplates(t *testing.T) {
	clearEnv(t)
	target, supported := releaseTarget()
	if !supported {
		t.Skipf("no release artifacts for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	root := t.TempDir()
	version := "v1.12.1"

	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = root
	policy.ReleaseVersion = version

	_, err := ResolveJailer(policy)
	require.Error(t, err)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, KindJailer, notFound.Kind)

	versioned := fmt.Sprintf("jailer-%s-%s", version, target)
	releaseDir := fmt.Sprintf("release-%s-%s", version, target)
	keys := targetKeys()
	expected := []string{
		filepath.Join(root, releaseDir, versioned),
		filepath.Join(root, releaseDir, "bin", versioned),
		filepath.Join(root, versioned),
		filepath.Join(root, keys[0], "jailer"),
		filepath.Join(root, keys[0], "bin", "jailer"),
		filepath.Join(root, keys[1], "jailer"),
		filepath.Join(root, keys[1], "bin", "jailer"),
		filepath.Join(root, "jailer"),
	}
	for _, path := range expected {
		assert.Contains(t, notFound.Searched, path)
	}
}

func TestEnvOverrideShortCircuits(t *testing.T) {
	clearEnv(t)
	binaryPath := filepath.Join(t.TempDir(), "custom-firecracker")
	writeExecutable(t, binaryPath)
	t.Setenv(EnvFirecrackerBin, binaryPath)
	t.Setenv("PATH", t.TempDir())

	policy := DefaultPolicy()
	policy.Mode = SystemOnly

	resolved, err := ResolveFirecracker(policy)
	require.NoError(t, err)
	assert.Equal(t, binaryPath, resolved.Path)
	assert.Equal(t, SourceOverride, resolved.Source)
}

func TestSystemPathLookup(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	binaryPath := filepath.Join(dir, "jailer")
	writeExecutable(t, binaryPath)
	t.Setenv("PATH", dir)

	policy := DefaultPolicy()
	policy.Mode = SystemOnly

	resolved, err := ResolveJailer(policy)
	require.NoError(t, err)
	assert.Equal(t, binaryPath, resolved.Path)
	assert.Equal(t, SourceSystem, resolved.Source)
}

func TestSystemThenBundledFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PATH", t.TempDir())
	root := t.TempDir()
	binaryPath := filepath.Join(root, "firecracker")
	writeExecutable(t, binaryPath)

	policy := DefaultPolicy()
	policy.Mode = SystemThenBundled
	policy.BundleRoot = root

	resolved, err := ResolveFirecracker(policy)
	require.NoError(t, err)
	assert.Equal(t, binaryPath, resolved.Path)
	assert.Equal(t, SourceBundled, resolved.Source)
}

func TestInvalidReleaseVersion(t *testing.T) {
	clearEnv(t)
	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = t.TempDir()
	policy.ReleaseVersion = "1.2.3"

	_, err := ResolveFirecracker(policy)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestInvalidChecksumString(t *testing.T) {
	clearEnv(t)
	policy := DefaultPolicy()
	policy.Mode = BundledOnly
	policy.BundleRoot = t.TempDir()
	policy.FirecrackerSHA256 = "not-a-digest"

	_, err := ResolveFirecracker(policy)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestUnknownMode(t *testing.T) {
	clearEnv(t)
	policy := DefaultPolicy()
	policy.Mode = Mode("sideways")

	_, err := ResolveFirecracker(policy)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestReleaseVersionSyntax(t *testing.T) {
	assert.True(t, isValidReleaseVersion("v1.12.1"))
	assert.True(t, isValidReleaseVersion("v0.0.0"))
	assert.False(t, isValidReleaseVersion("1.12.1"))
	assert.False(t, isValidReleaseVersion("v1.12"))
	assert.False(t, isValidReleaseVersion("v1.12.x"))
	assert.False(t, isValidReleaseVersion(""))
}

func TestNotFoundErrorWrapping(t *testing.T) {
	err := &NotFoundError{Kind: KindFirecracker, Searched: []string{"/a", "/b"}}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "/a")
	assert.Contains(t, err.Error(), "/b")
}
