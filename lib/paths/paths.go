// Package paths provides centralized path construction for the firekit data directory.
package paths

import "path/filepath"

// DefaultSocketName is the socket filename Firecracker is told to bind
// when firekit manages the VM directory.
const DefaultSocketName = "firecracker.sock"

// Paths provides typed path construction for the firekit data directory.
type Paths struct {
	dataDir string
}

// New creates a new Paths instance for the given data directory.
func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory.
func (p *Paths) DataDir() string {
	return p.dataDir
}

// VMsDir returns the root directory holding per-VM state.
func (p *Paths) VMsDir() string {
	return filepath.Join(p.dataDir, "vms")
}

// VMDir returns the directory for a VM.
func (p *Paths) VMDir(id string) string {
	return filepath.Join(p.VMsDir(), id)
}

// VMSocket returns the path to the VM's API socket.
// Kept short to stay within unix socket path limits (SUN_LEN ~108 bytes).
func (p *Paths) VMSocket(id string) string {
	return filepath.Join(p.VMDir(id), DefaultSocketName)
}

// VMLogs returns the VM's logs directory.
func (p *Paths) VMLogs(id string) string {
	return filepath.Join(p.VMDir(id), "logs")
}

// VMProcessLog returns the path to the combined stdout+stderr log of the
// hypervisor process.
func (p *Paths) VMProcessLog(id string) string {
	return filepath.Join(p.VMLogs(id), "firecracker.log")
}

// VMSnapshots returns the VM's snapshots directory.
func (p *Paths) VMSnapshots(id string) string {
	return filepath.Join(p.VMDir(id), "snapshots")
}

// VMSnapshotFile returns the path to a named snapshot's state file.
func (p *Paths) VMSnapshotFile(id, name string) string {
	return filepath.Join(p.VMSnapshots(id), name, "snapshot")
}

// VMSnapshotMemFile returns the path to a named snapshot's guest memory file.
func (p *Paths) VMSnapshotMemFile(id, name string) string {
	return filepath.Join(p.VMSnapshots(id), name, "mem")
}

// BundleDir returns the default directory for bundled release binaries.
func (p *Paths) BundleDir() string {
	return filepath.Join(p.dataDir, "bundled")
}
