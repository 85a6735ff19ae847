package session

import (
	"context"
	"errors"
	"net"

	"github.com/arloliu/go-gxip/fwlink"
	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/logger"
)

// Version of the GXIP protocol reported in protocol-info replies.
const (
	ProtocolMajor byte = 1
	ProtocolMinor byte = 0
)

// Transactor starts firmware transactions. It is satisfied by *fwlink.Coordinator.
type Transactor interface {
	Begin(pkt *gxip.Packet, sink fwlink.HostSink, discardHandshake bool) error
}

// Backend provides the instrument state answered by control requests.
type Backend interface {
	FirmwareVersion() (major, minor, build byte)
	UpdaterVersion() (major, minor, build byte)
	HardwareAddr() net.HardwareAddr
	SerialNumber() (uint32, error)
	SetSerialNumber(sn uint32) error
	CommStats() CommStats
	LiveSites() byte
	BusySites() byte
	// ResetSessions drops the clients of every session server.
	ResetSessions()
}

// GXIPHandler dispatches GXIP packets received by a session server.
type GXIPHandler struct {
	slot       int
	backend    Backend
	transactor Transactor
	logger     logger.Logger
}

var _ Handler = (*GXIPHandler)(nil)

// NewGXIPHandler creates the handler of the server serving slot. Only the firmware slot
// forwards commands and requests to transactor, which may be nil for the other slots.
func NewGXIPHandler(slot int, backend Backend, transactor Transactor, l logger.Logger) (*GXIPHandler, error) {
	if _, err := PortForSlot(slot); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	if slot == FirmwareSlot && transactor == nil {
		return nil, errors.New("transactor is nil for firmware slot")
	}
	if l == nil {
		l = logger.GetLogger()
	}

	return &GXIPHandler{
		slot:       slot,
		backend:    backend,
		transactor: transactor,
		logger:     l.With("component", "gxip", "slot", slot),
	}, nil
}

// HandleFrame decodes frame and dispatches it by type. Only a malformed frame returns an error.
func (h *GXIPHandler) HandleFrame(_ context.Context, s *Server, frame []byte) error {
	pkt, err := gxip.Decode(frame)
	if err != nil {
		return err
	}

	switch pkt.Type() {
	case gxip.ProtocolType:
		h.reply(s, gxip.NewProtocolInfo(ProtocolMajor, ProtocolMinor))

	case gxip.ControlType:
		h.dispatchControl(s, pkt)

	case gxip.CommandType, gxip.RequestType, gxip.CommandExtType, gxip.RequestExtType:
		if h.slot != FirmwareSlot {
			h.logger.Debug("command ignored on non-firmware slot", "packet", pkt)
			break
		}

		if err := h.transactor.Begin(pkt, s, false); err != nil {
			h.logger.Warn("transaction refused", "packet", pkt, "error", err)
		}

	default:
		h.logger.Info("unhandled packet", "packet", pkt)
	}

	return nil
}

func (h *GXIPHandler) dispatchControl(s *Server, pkt *gxip.Packet) {
	req, err := gxip.AsControl(pkt)
	if err != nil {
		h.logger.Warn("malformed control request", "packet", pkt, "error", err)
		return
	}

	h.logger.Debug("control request", "control", gxip.ControlName(req.ID()))

	var body []byte
	switch req.ID() {
	case gxip.CtlGetVersion:
		major, minor, build := h.backend.FirmwareVersion()
		body = []byte{major, minor, build}

	case gxip.CtlGetUpdaterVersion:
		major, minor, build := h.backend.UpdaterVersion()
		body = []byte{major, minor, build}

	case gxip.CtlGetCommStats:
		body = h.backend.CommStats().Bytes()

	case gxip.CtlGetLiveSites:
		body = []byte{h.backend.LiveSites()}

	case gxip.CtlGetBusySites:
		body = []byte{h.backend.BusySites()}

	case gxip.CtlGetHardwareAddr:
		mac := make([]byte, 6)
		copy(mac, h.backend.HardwareAddr())
		body = append([]byte{1}, mac...)

	case gxip.CtlGetSerialNumber:
		sn, err := h.backend.SerialNumber()
		if err != nil {
			h.logger.Warn("failed to read serial number", "error", err)
		}
		body = gxip.Uint32Bytes(sn)

	case gxip.CtlSetSerialNumber:
		sn, err := req.SerialNumber()
		if err != nil {
			h.logger.Warn("malformed set serial number request", "error", err)
			return
		}

		status := byte(1)
		if err := h.backend.SetSerialNumber(sn); err != nil {
			h.logger.Error("failed to persist serial number", "serial_number", sn, "error", err)
			status = 0
		}
		body = []byte{status}

	case gxip.CtlReset:
		h.replyControl(s, req.ID(), 1)
		h.logger.Info("reset requested, dropping all sessions")
		h.backend.ResetSessions()

		return

	case gxip.CtlEcho:
		if len(req.Body()) > gxip.MaxEchoSize {
			h.logger.Warn("echo request rejected", "error", ErrEchoTooLarge, "size", len(req.Body()), "max", gxip.MaxEchoSize)
			return
		}
		body = req.Body()

	default:
		h.logger.Info("unknown control request ignored", "control", gxip.ControlName(req.ID()))
		return
	}

	h.replyControl(s, req.ID(), body...)
}

func (h *GXIPHandler) replyControl(s *Server, id gxip.ControlID, body ...byte) {
	rsp, err := gxip.NewControlResponse(id, body...)
	if err != nil {
		h.logger.Error("failed to build control response", "control", gxip.ControlName(id), "error", err)
		return
	}
	h.reply(s, rsp)
}

func (h *GXIPHandler) reply(s *Server, pkt *gxip.Packet) {
	if err := s.SendPacket(pkt); err != nil {
		h.logger.Warn("failed to send reply", "packet", pkt, "error", err)
	}
}
