package binaries

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samber/lo"
)

// candidate is a path to probe together with the source it would be
// attributed to if it wins.
type candidate struct {
	path   string
	source Source
}

// Resolve produces an absolute, existing, executable path for the given
// binary kind under the policy. It never mutates the filesystem beyond
// the optional EnsureExecutable chmod.
func Resolve(kind Kind, policy Policy) (Resolved, error) {
	name, envVar, expectedRaw, err := kindParams(kind, policy)
	if err != nil {
		return Resolved{}, err
	}

	mode := policy.Mode
	if mode == "" {
		mode = BundledThenSystem
	}
	switch mode {
	case BundledOnly, SystemOnly, BundledThenSystem, SystemThenBundled:
	default:
		return Resolved{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, mode)
	}

	expected := ""
	if expectedRaw != "" {
		norm, ok := normalizeSHA256(expectedRaw)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: malformed sha256 %q for %s", ErrInvalidPolicy, expectedRaw, kind)
		}
		expected = norm
	}

	bundledEnabled := mode != SystemOnly
	version := ""
	if bundledEnabled {
		version = policy.ReleaseVersion
		if version == "" {
			version = os.Getenv(EnvRelease)
		}
		if version != "" && !isValidReleaseVersion(version) {
			return Resolved{}, fmt.Errorf("%w: malformed release version %q", ErrInvalidPolicy, version)
		}
	}

	roots := bundleRoots(policy)
	var searched []string

	// Explicit override takes precedence over every mode.
	if override := os.Getenv(envVar); override != "" {
		var cands []candidate
		if looksLikePath(override) {
			cands = []candidate{{path: override, source: SourceOverride}}
		} else {
			cands = systemCandidates(override)
			if bundledEnabled {
				cands = append(cands, bundledCandidates(override, roots, version)...)
			}
			for i := range cands {
				cands[i].source = SourceOverride
			}
		}
		if resolved, ok, err := firstValid(kind, cands, policy.EnsureExecutable, expected, &searched); err != nil {
			return Resolved{}, err
		} else if ok {
			return resolved, nil
		}
	}

	// Resolution modes are an ordered strategy list tried in sequence
	// with short-circuit on first success.
	var strategies []func() []candidate
	bundled := func() []candidate { return bundledCandidates(name, roots, version) }
	system := func() []candidate { return systemCandidates(name) }
	switch mode {
	case BundledOnly:
		strategies = []func() []candidate{bundled}
	case SystemOnly:
		strategies = []func() []candidate{system}
	case BundledThenSystem:
		strategies = []func() []candidate{bundled, system}
	case SystemThenBundled:
		strategies = []func() []candidate{system, bundled}
	}

	for _, strategy := range strategies {
		if resolved, ok, err := firstValid(kind, strategy(), policy.EnsureExecutable, expected, &searched); err != nil {
			return Resolved{}, err
		} else if ok {
			return resolved, nil
		}
	}

	return Resolved{}, &NotFoundError{Kind: kind, Searched: lo.Uniq(searched)}
}

// ResolveFirecracker resolves the hypervisor binary.
func ResolveFirecracker(policy Policy) (Resolved, error) {
	return Resolve(KindFirecracker, policy)
}

// ResolveJailer resolves the launcher binary.
func ResolveJailer(policy Policy) (Resolved, error) {
	return Resolve(KindJailer, policy)
}

func kindParams(kind Kind, policy Policy) (name, envVar, sha string, err error) {
	switch kind {
	case KindFirecracker:
		name = policy.FirecrackerName
		if name == "" {
			name = string(KindFirecracker)
		}
		return name, EnvFirecrackerBin, policy.FirecrackerSHA256, nil
	case KindJailer:
		name = policy.JailerName
		if name == "" {
			name = string(KindJailer)
		}
		return name, EnvJailerBin, policy.JailerSHA256, nil
	default:
		return "", "", "", fmt.Errorf("%w: unknown binary kind %q", ErrInvalidPolicy, kind)
	}
}

// firstValid probes candidates in order and returns the first existing
// executable file. Checksum mismatch and unfixable permissions are hard
// errors, never fall-through.
func firstValid(kind Kind, cands []candidate, ensureExec bool, expected string, searched *[]string) (Resolved, bool, error) {
	for _, c := range lo.UniqBy(cands, func(c candidate) string { return c.path }) {
		*searched = append(*searched, c.path)

		info, err := os.Stat(c.path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if ensureExec {
			if err := ensureExecutable(c.path, info.Mode()); err != nil {
				return Resolved{}, false, fmt.Errorf("%w: %s: %v", ErrNotExecutable, c.path, err)
			}
		} else if info.Mode().Perm()&0o111 == 0 {
			return Resolved{}, false, fmt.Errorf("%w: %s", ErrNotExecutable, c.path)
		}

		abs, err := filepath.Abs(c.path)
		if err != nil {
			abs = c.path
		}

		if expected != "" {
			actual, err := fileSHA256(abs)
			if err != nil {
				return Resolved{}, false, fmt.Errorf("hash %s: %w", abs, err)
			}
			if actual != expected {
				return Resolved{}, false, &ChecksumMismatchError{
					Kind:     kind,
					Path:     abs,
					Source:   c.source,
					Expected: expected,
					Actual:   actual,
				}
			}
		}

		return Resolved{Path: abs, Source: c.source, Verified: expected != ""}, true, nil
	}
	return Resolved{}, false, nil
}

// bundleRoots returns the ordered, deduplicated list of bundle roots to
// probe: explicit policy root, environment, next to the executable, and
// the working directory.
func bundleRoots(policy Policy) []string {
	var roots []string
	if policy.BundleRoot != "" {
		roots = append(roots, policy.BundleRoot)
	}
	if envRoot := os.Getenv(EnvBundleDir); envRoot != "" {
		roots = append(roots, envRoot)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		roots = append(roots, filepath.Join(exeDir, "bundled"))
		roots = append(roots, filepath.Join(exeDir, "..", "bundled"))
	}
	roots = append(roots, "bundled")
	return lo.Uniq(roots)
}

// bundledCandidates expands the bundled path templates for every root,
// in fixed priority order. Release-specific templates only apply on
// supported release targets; elsewhere only {root}/{name} is probed.
func bundledCandidates(name string, roots []string, version string) []candidate {
	target, supported := releaseTarget()
	var cands []candidate
	for _, root := range roots {
		if !supported {
			cands = append(cands, candidate{filepath.Join(root, name), SourceBundled})
			continue
		}
		if version != "" {
			versioned := fmt.Sprintf("%s-%s-%s", name, version, target)
			releaseDir := fmt.Sprintf("release-%s-%s", version, target)
			cands = append(cands,
				candidate{filepath.Join(root, releaseDir, versioned), SourceBundled},
				candidate{filepath.Join(root, releaseDir, "bin", versioned), SourceBundled},
				candidate{filepath.Join(root, versioned), SourceBundled},
			)
		}
		for _, key := range targetKeys() {
			cands = append(cands,
				candidate{filepath.Join(root, key, name), SourceBundled},
				candidate{filepath.Join(root, key, "bin", name), SourceBundled},
			)
		}
		cands = append(cands, candidate{filepath.Join(root, name), SourceBundled})
	}
	return cands
}

// systemCandidates expands the literal binary name against every PATH
// entry. A name that is already a path is probed as-is.
func systemCandidates(name string) []candidate {
	if looksLikePath(name) {
		return []candidate{{path: name, source: SourceSystem}}
	}
	var cands []candidate
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		cands = append(cands, candidate{path: filepath.Join(dir, name), source: SourceSystem})
	}
	return cands
}

func looksLikePath(s string) bool {
	return filepath.IsAbs(s) || strings.ContainsRune(s, os.PathSeparator)
}

// releaseArch maps the Go architecture name to Firecracker's release
// naming ("x86_64", "aarch64").
func releaseArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// releaseTarget returns the {os}-{arch} pair used in release artifact
// names, and whether upstream publishes releases for this platform.
func releaseTarget() (string, bool) {
	arch := releaseArch()
	target := runtime.GOOS + "-" + arch
	supported := runtime.GOOS == "linux" && (arch == "x86_64" || arch == "aarch64")
	return target, supported
}

func targetKeys() []string {
	arch := releaseArch()
	return []string{runtime.GOOS + "-" + arch, arch + "-" + runtime.GOOS}
}

func isValidReleaseVersion(v string) bool {
	if !strings.HasPrefix(v, "v") {
		return false
	}
	parts := strings.Split(v[1:], ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func normalizeSHA256(raw string) (string, bool) {
	value := strings.TrimPrefix(raw, "sha256:")
	if len(value) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(value); err != nil {
		return "", false
	}
	return strings.ToLower(value), true
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func ensureExecutable(path string, mode os.FileMode) error {
	if mode.Perm()&0o111 != 0 {
		return nil
	}
	return os.Chmod(path, mode.Perm()|0o500)
}
