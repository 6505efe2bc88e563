// Package fcapi is a typed client for the Firecracker control API over
// its unix socket. Only the endpoints the lifecycle layer consumes are
// modeled; everything is plain request/response with structured errors.
package fcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// CallError is a failed control API call. Op names the operation, and
// either Err holds a transport error or StatusCode/FaultMessage hold
// the API rejection.
type CallError struct {
	Op           string
	StatusCode   int
	FaultMessage string
	Err          error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.FaultMessage != "" {
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.FaultMessage)
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client issues control API calls against a Firecracker socket.
type Client struct {
	http       *http.Client
	socketPath string
}

// NewClient creates a client for an existing Firecracker API socket.
func NewClient(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		// Disable keep-alives to prevent connection leaks. Each client
		// gets its own transport, so pooled connections would just
		// accumulate against the single-listener firecracker socket.
		DisableKeepAlives: true,
	}
	return &Client{
		http: &http.Client{
			Transport: &metricsRoundTripper{base: transport},
			Timeout:   30 * time.Second,
		},
		socketPath: socketPath,
	}
}

// SocketPath returns the socket this client is bound to.
func (c *Client) SocketPath() string { return c.socketPath }

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &CallError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, reader)
	if err != nil {
		return &CallError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if uerr, ok := err.(*url.Error); ok {
			err = uerr.Err
		}
		return &CallError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CallError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var f fault
		_ = json.Unmarshal(data, &f)
		return &CallError{Op: op, StatusCode: resp.StatusCode, FaultMessage: f.FaultMessage}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &CallError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

// PutLogger configures Firecracker's log output.
func (c *Client) PutLogger(ctx context.Context, cfg LoggerConfig) error {
	return c.do(ctx, "put logger", http.MethodPut, "/logger", cfg, nil)
}

// PutMetrics configures Firecracker's metrics output.
func (c *Client) PutMetrics(ctx context.Context, cfg MetricsConfig) error {
	return c.do(ctx, "put metrics", http.MethodPut, "/metrics", cfg, nil)
}

// PutBootSource sets the guest boot source.
func (c *Client) PutBootSource(ctx context.Context, src BootSource) error {
	return c.do(ctx, "put boot source", http.MethodPut, "/boot-source", src, nil)
}

// PutMachineConfiguration sets vCPU count and memory size.
func (c *Client) PutMachineConfiguration(ctx context.Context, cfg MachineConfiguration) error {
	return c.do(ctx, "put machine config", http.MethodPut, "/machine-config", cfg, nil)
}

// PutDrive attaches a block device, keyed by its drive id.
func (c *Client) PutDrive(ctx context.Context, drive Drive) error {
	return c.do(ctx, "put drive "+drive.DriveID, http.MethodPut, "/drives/"+url.PathEscape(drive.DriveID), drive, nil)
}

// PutNetworkInterface attaches a network interface, keyed by its iface id.
func (c *Client) PutNetworkInterface(ctx context.Context, iface NetworkInterface) error {
	return c.do(ctx, "put network interface "+iface.IfaceID, http.MethodPut, "/network-interfaces/"+url.PathEscape(iface.IfaceID), iface, nil)
}

// PutBalloon configures the balloon device.
func (c *Client) PutBalloon(ctx context.Context, balloon Balloon) error {
	return c.do(ctx, "put balloon", http.MethodPut, "/balloon", balloon, nil)
}

// PatchBalloon updates the balloon target size on a running VM.
func (c *Client) PatchBalloon(ctx context.Context, update BalloonUpdate) error {
	return c.do(ctx, "patch balloon", http.MethodPatch, "/balloon", update, nil)
}

// PutVsock configures the vsock device.
func (c *Client) PutVsock(ctx context.Context, vsock Vsock) error {
	return c.do(ctx, "put vsock", http.MethodPut, "/vsock", vsock, nil)
}

// PutMmdsConfig configures the metadata service.
func (c *Client) PutMmdsConfig(ctx context.Context, cfg MmdsConfig) error {
	return c.do(ctx, "put mmds config", http.MethodPut, "/mmds/config", cfg, nil)
}

// PutMmds replaces the metadata service data store.
func (c *Client) PutMmds(ctx context.Context, data MmdsData) error {
	return c.do(ctx, "put mmds", http.MethodPut, "/mmds", data, nil)
}

// PatchMmds merges into the metadata service data store.
func (c *Client) PatchMmds(ctx context.Context, data MmdsData) error {
	return c.do(ctx, "patch mmds", http.MethodPatch, "/mmds", data, nil)
}

// GetMmds returns the metadata service data store.
func (c *Client) GetMmds(ctx context.Context) (MmdsData, error) {
	var data MmdsData
	if err := c.do(ctx, "get mmds", http.MethodGet, "/mmds", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// CreateSyncAction triggers an instance action (boot, ctrl-alt-del, ...).
func (c *Client) CreateSyncAction(ctx context.Context, actionType string) error {
	return c.do(ctx, "action "+actionType, http.MethodPut, "/actions", instanceActionInfo{ActionType: actionType}, nil)
}

// PatchVmState pauses or resumes the guest.
func (c *Client) PatchVmState(ctx context.Context, state string) error {
	return c.do(ctx, "patch vm state "+state, http.MethodPatch, "/vm", vmStateUpdate{State: state}, nil)
}

// CreateSnapshot writes a snapshot of a paused or running guest.
func (c *Client) CreateSnapshot(ctx context.Context, params SnapshotCreateParams) error {
	return c.do(ctx, "create snapshot", http.MethodPut, "/snapshot/create", params, nil)
}

// LoadSnapshot restores guest state on a fresh instance.
func (c *Client) LoadSnapshot(ctx context.Context, params SnapshotLoadParams) error {
	return c.do(ctx, "load snapshot", http.MethodPut, "/snapshot/load", params, nil)
}

// GetExportVmConfig exports the currently-applied VM configuration.
func (c *Client) GetExportVmConfig(ctx context.Context) (FullVmConfiguration, error) {
	var cfg FullVmConfiguration
	if err := c.do(ctx, "export vm config", http.MethodGet, "/vm/config", nil, &cfg); err != nil {
		return FullVmConfiguration{}, err
	}
	return cfg, nil
}

// DescribeInstance returns general instance information.
func (c *Client) DescribeInstance(ctx context.Context) (InstanceInfo, error) {
	var info InstanceInfo
	if err := c.do(ctx, "describe instance", http.MethodGet, "/", nil, &info); err != nil {
		return InstanceInfo{}, err
	}
	return info, nil
}

// GetFirecrackerVersion returns the running Firecracker version.
func (c *Client) GetFirecrackerVersion(ctx context.Context) (FirecrackerVersion, error) {
	var v FirecrackerVersion
	if err := c.do(ctx, "get version", http.MethodGet, "/version", nil, &v); err != nil {
		return FirecrackerVersion{}, err
	}
	return v, nil
}
