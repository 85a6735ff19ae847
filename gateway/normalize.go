package gateway

import (
	"time"

	"github.com/arloliu/go-gxip/chcp"
	"github.com/arloliu/go-gxip/dlm"
	"github.com/arloliu/go-gxip/session"
)

const (
	DefaultSpecFile   = "/system/gateway/gateway.spec"
	DefaultEEPROMFile = "/system/gateway/eeprom.txt"
)

// Normalize fills defaults into zero-valued fields. It must be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.SpecFile == "" {
		cfg.SpecFile = DefaultSpecFile
	}
	if cfg.EEPROMFile == "" {
		cfg.EEPROMFile = DefaultEEPROMFile
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Ports.Master == 0 {
		cfg.Ports.Master = session.MasterPort
	}
	if len(cfg.Ports.Slots) == 0 {
		for slot := 0; slot <= session.MaxSlot; slot++ {
			port, _ := session.PortForSlot(slot)
			cfg.Ports.Slots = append(cfg.Ports.Slots, port)
		}
	}
	if cfg.Ports.DLM == 0 {
		cfg.Ports.DLM = dlm.Port
	}
	if cfg.Ports.CHCP == 0 {
		cfg.Ports.CHCP = chcp.ListenPort
	}

	if cfg.FIFO.Backend == "" {
		cfg.FIFO.Backend = "mmap"
	}
	if cfg.FIFO.Baud == 0 {
		cfg.FIFO.Baud = 115200
	}
	if cfg.FIFO.PollInterval == 0 {
		cfg.FIFO.PollInterval = 20 * time.Millisecond
	}

	if cfg.Firmware.HandshakeTimeout == 0 {
		cfg.Firmware.HandshakeTimeout = 5 * time.Second
	}
	if cfg.Firmware.ResponseTimeout == 0 {
		cfg.Firmware.ResponseTimeout = 15 * time.Second
	}

	if cfg.Update.PointerFile == "" {
		cfg.Update.PointerFile = dlm.DefaultPointerFile
	}
	if cfg.Update.Executable == "" {
		cfg.Update.Executable = dlm.DefaultExecutable
	}

	if cfg.Network.BindDevice == nil {
		bind := true
		cfg.Network.BindDevice = &bind
	}

	if cfg.Herald.Broadcast == "" {
		cfg.Herald.Broadcast = "255.255.255.255"
	}
	if cfg.Herald.Port == 0 {
		cfg.Herald.Port = chcp.HeraldPort
	}
	if cfg.Herald.Interval == 0 {
		cfg.Herald.Interval = chcp.HeraldInterval
	}
}
