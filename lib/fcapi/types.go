package fcapi

// Firecracker API model subset used by the lifecycle layer. Field names
// and JSON tags follow the Firecracker API swagger definitions.

// BootSource configures the guest kernel.
type BootSource struct {
	KernelImagePath string  `json:"kernel_image_path"`
	BootArgs        *string `json:"boot_args,omitempty"`
	InitrdPath      *string `json:"initrd_path,omitempty"`
}

// MachineConfiguration sets vCPU count and memory size.
type MachineConfiguration struct {
	VcpuCount       int64   `json:"vcpu_count"`
	MemSizeMib      int64   `json:"mem_size_mib"`
	Smt             *bool   `json:"smt,omitempty"`
	TrackDirtyPages *bool   `json:"track_dirty_pages,omitempty"`
	CpuTemplate     *string `json:"cpu_template,omitempty"`
	HugePages       *string `json:"huge_pages,omitempty"`
}

// Drive is a block device definition.
type Drive struct {
	DriveID      string  `json:"drive_id"`
	PathOnHost   *string `json:"path_on_host,omitempty"`
	IsRootDevice bool    `json:"is_root_device"`
	IsReadOnly   *bool   `json:"is_read_only,omitempty"`
	Partuuid     *string `json:"partuuid,omitempty"`
	CacheType    *string `json:"cache_type,omitempty"`
	IoEngine     *string `json:"io_engine,omitempty"`
}

// NetworkInterface is a tap-backed guest network device.
type NetworkInterface struct {
	IfaceID     string  `json:"iface_id"`
	HostDevName string  `json:"host_dev_name"`
	GuestMac    *string `json:"guest_mac,omitempty"`
}

// Balloon is the memory balloon device configuration.
type Balloon struct {
	AmountMib             int64  `json:"amount_mib"`
	DeflateOnOom          bool   `json:"deflate_on_oom"`
	StatsPollingIntervalS *int64 `json:"stats_polling_interval_s,omitempty"`
}

// BalloonUpdate adjusts the balloon target size post-boot.
type BalloonUpdate struct {
	AmountMib int64 `json:"amount_mib"`
}

// Vsock is a virtio-vsock device backed by a host unix socket.
type Vsock struct {
	GuestCid int64   `json:"guest_cid"`
	UdsPath  string  `json:"uds_path"`
	VsockID  *string `json:"vsock_id,omitempty"`
}

// MmdsConfig configures the microVM metadata service.
type MmdsConfig struct {
	Version           *string  `json:"version,omitempty"`
	NetworkInterfaces []string `json:"network_interfaces,omitempty"`
	IPv4Address       *string  `json:"ipv4_address,omitempty"`
}

// MmdsData is the metadata service data store contents.
type MmdsData map[string]any

// LoggerConfig configures Firecracker's own log output.
type LoggerConfig struct {
	LogPath       string  `json:"log_path"`
	Level         *string `json:"level,omitempty"`
	ShowLevel     *bool   `json:"show_level,omitempty"`
	ShowLogOrigin *bool   `json:"show_log_origin,omitempty"`
}

// MetricsConfig configures Firecracker's metrics output.
type MetricsConfig struct {
	MetricsPath string `json:"metrics_path"`
}

// Snapshot types accepted by CreateSnapshot.
const (
	SnapshotTypeFull = "Full"
	SnapshotTypeDiff = "Diff"
)

// SnapshotCreateParams names the state and guest memory files to write.
type SnapshotCreateParams struct {
	SnapshotPath string  `json:"snapshot_path"`
	MemFilePath  string  `json:"mem_file_path"`
	SnapshotType *string `json:"snapshot_type,omitempty"`
}

// SnapshotLoadParams names the snapshot to restore from. ResumeVM
// selects whether the guest resumes immediately or stays paused.
type SnapshotLoadParams struct {
	SnapshotPath        string  `json:"snapshot_path"`
	MemFilePath         *string `json:"mem_file_path,omitempty"`
	EnableDiffSnapshots *bool   `json:"enable_diff_snapshots,omitempty"`
	ResumeVM            bool    `json:"resume_vm"`
}

// FullVmConfiguration is the aggregate configuration exported by
// GET /vm/config and re-consumable by a fresh builder.
type FullVmConfiguration struct {
	BootSource        *BootSource           `json:"boot-source,omitempty"`
	MachineConfig     *MachineConfiguration `json:"machine-config,omitempty"`
	Drives            []Drive               `json:"drives,omitempty"`
	NetworkInterfaces []NetworkInterface    `json:"network-interfaces,omitempty"`
	Balloon           *Balloon              `json:"balloon,omitempty"`
	Vsock             *Vsock                `json:"vsock,omitempty"`
	Logger            *LoggerConfig         `json:"logger,omitempty"`
	Metrics           *MetricsConfig        `json:"metrics,omitempty"`
	MmdsConfig        *MmdsConfig           `json:"mmds-config,omitempty"`
}

// InstanceInfo is returned by DescribeInstance.
type InstanceInfo struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	VmmVersion string `json:"vmm_version"`
	AppName    string `json:"app_name"`
}

// FirecrackerVersion is returned by GetFirecrackerVersion.
type FirecrackerVersion struct {
	FirecrackerVersion string `json:"firecracker_version"`
}

// VM states accepted by PatchVmState.
const (
	VmStatePaused  = "Paused"
	VmStateResumed = "Resumed"
)

// Instance actions accepted by CreateSyncAction.
const (
	ActionInstanceStart  = "InstanceStart"
	ActionSendCtrlAltDel = "SendCtrlAltDel"
	ActionFlushMetrics   = "FlushMetrics"
)

type instanceActionInfo struct {
	ActionType string `json:"action_type"`
}

type vmStateUpdate struct {
	State string `json:"state"`
}

type fault struct {
	FaultMessage string `json:"fault_message"`
}
