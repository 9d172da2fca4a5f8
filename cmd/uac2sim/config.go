package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardnew/uac2speaker/device"
	"github.com/ardnew/uac2speaker/device/class/uac2"
	"github.com/ardnew/uac2speaker/device/hal/sim"
)

// Log selects the logger installed for every component.
type Log struct {
	Level  string `help:"Log level: trace, debug, info, warn, error." default:"info" enum:"trace,debug,info,warn,error" env:"UAC2SIM_LOG_LEVEL"`
	Format string `help:"Log format: text or json." default:"text" enum:"text,json" env:"UAC2SIM_LOG_FORMAT"`
}

// DeviceFlags configures the driver. The values must agree with the
// speaker's configuration descriptor for streaming to work.
type DeviceFlags struct {
	Interface     uint8  `help:"AudioStreaming interface number." default:"1" env:"UAC2SIM_DEVICE_INTERFACE"`
	Endpoint      uint8  `help:"Isochronous OUT endpoint number." default:"1" env:"UAC2SIM_DEVICE_ENDPOINT"`
	MaxPacketSize uint16 `help:"Isochronous OUT max packet size in bytes." default:"192" env:"UAC2SIM_DEVICE_MAX_PACKET_SIZE"`
}

// newDriver returns a driver for the speaker function over core.
func (f DeviceFlags) newDriver(core *sim.Core) *device.Driver {
	return device.NewDriver(core, uac2.NewStore(),
		device.WithStreaming(f.Interface, f.Endpoint, f.MaxPacketSize),
		device.WithClassHandler(uac2.NewClockHandler(uac2.SampleRate)),
	)
}

// HostFlags configures the scripted host.
type HostFlags struct {
	Address    uint8         `help:"USB address assigned during enumeration (1-127)." default:"1" env:"UAC2SIM_HOST_ADDRESS"`
	Retries    int           `help:"NAK retries per transaction." default:"2000" env:"UAC2SIM_HOST_RETRIES"`
	RetryDelay time.Duration `help:"Delay between NAK retries." default:"50us" env:"UAC2SIM_HOST_RETRY_DELAY"`
}

// newHost returns a host attached to core.
func (f HostFlags) newHost(core *sim.Core) *sim.Host {
	return sim.NewHost(core, sim.WithRetries(f.Retries), sim.WithRetryDelay(f.RetryDelay))
}

// CLI is the root command structure for kong.
type CLI struct {
	Log `embed:"" prefix:"log."`

	Config string `help:"Configuration file (.yaml, .yml or .toml)." type:"path" env:"UAC2SIM_CONFIG"`

	Run         RunCmd         `cmd:"" help:"Run the driver against the simulated core with a scripted host streaming audio."`
	Enumerate   EnumerateCmd   `cmd:"" help:"Enumerate the simulated speaker like a host and print the transcript."`
	Descriptors DescriptorsCmd `cmd:"" help:"Print the speaker's descriptors."`
}

// configDir is the per-user configuration directory.
func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "uac2sim")
}

// configPaths returns the YAML and TOML configuration candidates in
// priority order. An explicit path is routed to the loader matching its
// extension and takes precedence over the defaults.
func configPaths(user string) (yamlPaths, tomlPaths []string) {
	switch ext := strings.ToLower(filepath.Ext(user)); {
	case user == "":
	case ext == ".toml":
		tomlPaths = append(tomlPaths, user)
	default:
		yamlPaths = append(yamlPaths, user)
	}
	yamlPaths = append(yamlPaths, "uac2sim.yaml", "uac2sim.yml")
	tomlPaths = append(tomlPaths, "uac2sim.toml")
	if dir := configDir(); dir != "" {
		yamlPaths = append(yamlPaths, filepath.Join(dir, "config.yaml"))
		tomlPaths = append(tomlPaths, filepath.Join(dir, "config.toml"))
	}
	return yamlPaths, tomlPaths
}

// findConfig returns the --config argument, falling back to UAC2SIM_CONFIG.
// It runs before kong so the file can feed the parse itself.
func findConfig(args []string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("UAC2SIM_CONFIG")
}
