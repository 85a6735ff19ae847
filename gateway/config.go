package gateway

import "time"

// Config is the process configuration, loaded from YAML. Every field has a default, so an
// empty file is a valid configuration.
type Config struct {
	// SpecFile is the key=value spec file holding DEFAULT_IP, INTERFACE, SANDBOX, LOCK_FS
	// and EEPROM.
	SpecFile string `yaml:"spec_file"`
	// EEPROMFile holds INSTRUMENT_SN.
	EEPROMFile string `yaml:"eeprom_file"`
	LogLevel   string `yaml:"log_level"`

	Ports    PortsConfig    `yaml:"ports"`
	FIFO     FIFOConfig     `yaml:"fifo"`
	Firmware FirmwareConfig `yaml:"firmware"`
	Update   UpdateConfig   `yaml:"update"`
	Network  NetworkConfig  `yaml:"network"`
	Herald   HeraldConfig   `yaml:"herald"`
	MDNS     MDNSConfig     `yaml:"mdns"`
}

// PortsConfig lists the listening ports.
type PortsConfig struct {
	// Address is the local address the TCP servers bind. Empty binds every interface.
	Address string `yaml:"address"`
	Master  int    `yaml:"master"`
	// Slots are the ports of slots 0..3.
	Slots []int `yaml:"slots"`
	DLM   int   `yaml:"dlm"`
	CHCP  int   `yaml:"chcp"`
}

// FIFOConfig selects the firmware FIFO backend.
type FIFOConfig struct {
	// Backend is "mmap", "serial" or "sim". The sim backend runs a firmware emulator.
	Backend      string        `yaml:"backend"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FirmwareConfig holds the transaction timeouts.
type FirmwareConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
}

// UpdateConfig configures the download manager.
type UpdateConfig struct {
	// Mode starts the process as the update receiver: a successful install does not exit.
	Mode bool `yaml:"mode"`
	// BankDir is the directory of the running bank. Empty uses the working directory.
	BankDir     string `yaml:"bank_dir"`
	PointerFile string `yaml:"pointer_file"`
	Executable  string `yaml:"executable"`
	// SkipRemount leaves the root filesystem mount alone, for development hosts.
	SkipRemount bool `yaml:"skip_remount"`
}

// NetworkConfig configures the instrument interface.
type NetworkConfig struct {
	// Interface overrides INTERFACE from the spec file.
	Interface string `yaml:"interface"`
	// Unmanaged keeps the gateway from changing the interface address.
	Unmanaged bool `yaml:"unmanaged"`
	// BindDevice binds the control channel sockets to the interface, which needs
	// CAP_NET_RAW. Defaults to true.
	BindDevice *bool `yaml:"bind_device"`
}

// HeraldConfig configures the identity broadcast.
type HeraldConfig struct {
	Broadcast string        `yaml:"broadcast"`
	Port      int           `yaml:"port"`
	Interval  time.Duration `yaml:"interval"`
}

// MDNSConfig configures the mDNS advertisement of the master port.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}
