// Package binaries resolves firecracker and jailer executables from a
// layered discovery policy: explicit environment overrides, bundled
// release artifacts, and the system search path.
package binaries

// Kind identifies which binary is being resolved.
type Kind string

const (
	// KindFirecracker is the hypervisor binary.
	KindFirecracker Kind = "firecracker"
	// KindJailer is the privilege-isolating launcher binary.
	KindJailer Kind = "jailer"
)

// Mode selects which sources are consulted and in what order.
type Mode string

const (
	// BundledOnly uses only bundled binaries.
	BundledOnly Mode = "bundled-only"
	// SystemOnly uses only binaries from PATH.
	SystemOnly Mode = "system-only"
	// BundledThenSystem tries bundled binaries first, then falls back to PATH.
	BundledThenSystem Mode = "bundled-then-system"
	// SystemThenBundled tries PATH first, then falls back to bundled binaries.
	SystemThenBundled Mode = "system-then-bundled"
)

// Source records where a resolved binary came from.
type Source string

const (
	// SourceBundled means the binary was found under a bundle root.
	SourceBundled Source = "bundled"
	// SourceSystem means the binary was found on PATH.
	SourceSystem Source = "system"
	// SourceOverride means an environment override named the binary.
	SourceOverride Source = "override"
)

// Environment variables recognized by the resolver. Each, when set to a
// non-empty value, short-circuits the corresponding resolution step.
const (
	EnvFirecrackerBin = "FIREKIT_FIRECRACKER_BIN"
	EnvJailerBin      = "FIREKIT_JAILER_BIN"
	EnvBundleDir      = "FIREKIT_BUNDLE_DIR"
	EnvRelease        = "FIREKIT_RELEASE"
)

// Policy controls binary resolution. The zero value is not useful; start
// from DefaultPolicy.
type Policy struct {
	// Mode selects the source ordering. Empty means BundledThenSystem.
	Mode Mode

	// BundleRoot is an explicit root directory for bundled binaries.
	// Additional roots are derived from the environment and the
	// executable's directory regardless of this field.
	BundleRoot string

	// ReleaseVersion is a Firecracker release version (e.g. "v1.12.1").
	// When set, bundled lookup prioritizes upstream release naming.
	ReleaseVersion string

	// FirecrackerName and JailerName override the binary filename
	// prefixes. Empty means "firecracker" and "jailer".
	FirecrackerName string
	JailerName      string

	// EnsureExecutable sets the executable bits on a discovered file
	// when they are missing.
	EnsureExecutable bool

	// FirecrackerSHA256 and JailerSHA256, when set, are verified against
	// the resolved file's content digest. A "sha256:" prefix is accepted.
	FirecrackerSHA256 string
	JailerSHA256      string
}

// DefaultPolicy returns the default resolution policy (BundledThenSystem).
func DefaultPolicy() Policy {
	return Policy{
		Mode:             BundledThenSystem,
		FirecrackerName:  string(KindFirecracker),
		JailerName:       string(KindJailer),
		EnsureExecutable: true,
	}
}

// Resolved is an absolute, existing, executable binary path. Immutable
// once produced.
type Resolved struct {
	Path     string
	Source   Source
	Verified bool
}
