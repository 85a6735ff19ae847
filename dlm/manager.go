package dlm

import (
	"context"

	"github.com/arloliu/go-gxip/logger"
	"github.com/arloliu/go-gxip/session"
)

// Manager serves the download manager protocol on a session server.
type Manager struct {
	cfg    *Config
	upload *Upload
	logger logger.Logger
}

var _ session.Handler = (*Manager)(nil)

// NewManager creates a download manager.
func NewManager(opts ...Option) (*Manager, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("component", "dlm")

	return &Manager{
		cfg:    cfg,
		upload: NewUpload(newInstaller(cfg), cfg.sandbox, l),
		logger: l,
	}, nil
}

// Upload returns the upload tracked by the manager.
func (m *Manager) Upload() *Upload {
	return m.upload
}

// NewServer creates the session server of the download manager on port.
func (m *Manager) NewServer(port int, opts ...session.ServerOption) (*session.Server, error) {
	opts = append([]session.ServerOption{
		session.WithName("dlm"),
		session.WithCapacity(MaxFrameSize),
		session.WithLogger(m.cfg.logger),
	}, opts...)

	return session.NewServer(port, m, opts...)
}

// HandleFrame answers one request. Every request gets a reply; a successful commit is
// acknowledged before the handoff runs.
func (m *Manager) HandleFrame(ctx context.Context, s *session.Server, frame []byte) error {
	req, err := ParseRequest(frame)
	if err != nil {
		return err
	}

	var opErr error
	committed := false

	switch req.Op {
	case OpFlashInit:
		opErr = m.upload.Init(ctx)

	case OpFlashWrite:
		opErr = m.upload.Write(req.Data)

	case OpFlashCommit:
		var res *Result
		res, opErr = m.upload.Commit(ctx)
		committed = opErr == nil
		if committed {
			m.logger.Info("update installed", "bank", res.Bank, "dir", res.Dir, "stripped_header", res.Stripped, "pointer_updated", res.PointerUpdated)
		}

	default:
		m.logger.Info("unsupported request", "op", OpName(req.Op))
		opErr = errUnsupported
	}

	if opErr != nil && opErr != errUnsupported {
		m.logger.Warn("request failed", "op", OpName(req.Op), "error", opErr)
	}

	if err := s.Send(Reply(req.Op, statusOf(opErr))); err != nil {
		m.logger.Warn("failed to send reply", "op", OpName(req.Op), "error", err)
	}

	if committed && m.cfg.handoff != nil {
		m.logger.Info("handing off to the installed bank")
		m.cfg.handoff()
	}

	return nil
}
