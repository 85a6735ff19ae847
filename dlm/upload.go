package dlm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arloliu/go-gxip/logger"
	"github.com/looplab/fsm"
)

// Upload states.
const (
	StateIdle       = "idle"
	StateStaging    = "staging"
	StateInstalling = "installing"
)

const (
	evInit    = "init"
	evDiscard = "discard"
	evCommit  = "commit"
	evFinish  = "finish"
)

// Upload tracks one bundle upload: the staging file and the install it leads to.
//
//	idle --init--> staging --commit--> installing --finish--> idle
//	              staging --discard--> idle
type Upload struct {
	mu        sync.Mutex
	machine   *fsm.FSM
	path      string
	file      *os.File
	written   int64
	installer *Installer
	logger    logger.Logger
}

// NewUpload creates an idle upload staging into <sandbox>/image.
func NewUpload(installer *Installer, sandbox string, l logger.Logger) *Upload {
	if l == nil {
		l = logger.GetLogger()
	}

	u := &Upload{
		path:      filepath.Join(sandbox, StagingFileName),
		installer: installer,
		logger:    l.With("component", "upload"),
	}

	u.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evInit, Src: []string{StateIdle}, Dst: StateStaging},
			{Name: evDiscard, Src: []string{StateStaging}, Dst: StateIdle},
			{Name: evCommit, Src: []string{StateStaging}, Dst: StateInstalling},
			{Name: evFinish, Src: []string{StateInstalling}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				u.logger.Debug("upload state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
			"before_" + evInit: func(_ context.Context, e *fsm.Event) {
				f, err := os.OpenFile(u.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
				if err != nil {
					e.Cancel(err)
					return
				}
				u.file = f
				u.written = 0
			},
			"leave_" + StateStaging: func(_ context.Context, e *fsm.Event) {
				if u.file == nil {
					return
				}
				if err := u.file.Close(); err != nil && e.Event == evCommit {
					e.Cancel(err)
					return
				}
				u.file = nil
			},
		},
	)

	return u
}

// State returns the current upload state.
func (u *Upload) State() string {
	return u.machine.Current()
}

// Path returns the staging file path.
func (u *Upload) Path() string {
	return u.path
}

// Written returns the number of bytes staged so far.
func (u *Upload) Written() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.written
}

// Init opens a fresh, empty staging file. An upload already staging is discarded first.
func (u *Upload) Init(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.machine.Current() {
	case StateInstalling:
		return ErrInstallInProgress
	case StateStaging:
		u.logger.Info("previous upload discarded", "written", u.written)
		if err := u.machine.Event(ctx, evDiscard); err != nil {
			return err
		}
	}

	if err := u.machine.Event(ctx, evInit); err != nil {
		return fmt.Errorf("open staging file %s: %w", u.path, unwrapCanceled(err))
	}

	return nil
}

// Write appends data to the staging file.
func (u *Upload) Write(data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.machine.Is(StateStaging) || u.file == nil {
		return ErrNoStagingFile
	}

	n, err := u.file.Write(data)
	u.written += int64(n)

	return err
}

// Commit closes the staging file and installs it.
func (u *Upload) Commit(ctx context.Context) (*Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.machine.Is(StateStaging) {
		return nil, ErrNoStagingFile
	}

	if err := u.machine.Event(ctx, evCommit); err != nil {
		u.logger.Error("failed to close staging file", "path", u.path, "error", err)
		_ = u.machine.Event(ctx, evDiscard)

		return nil, unwrapCanceled(err)
	}
	defer func() {
		if err := u.machine.Event(ctx, evFinish); err != nil {
			u.logger.Error("upload state not reset", "error", err)
		}
	}()

	u.logger.Info("upload committed", "path", u.path, "size", u.written)

	return u.installer.Install(ctx, u.path)
}

// Discard drops an upload in progress.
func (u *Upload) Discard(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.machine.Is(StateStaging) {
		_ = u.machine.Event(ctx, evDiscard)
	}
}

// unwrapCanceled returns the error a callback canceled the transition with.
func unwrapCanceled(err error) error {
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}

	return err
}
