package dlm

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type installEnv struct {
	root      string
	current   string
	inactive  string
	pointer   string
	remounter *fakeRemounter
	runner    *fakeRunner
}

func newInstallEnv(t *testing.T) *installEnv {
	t.Helper()

	root := t.TempDir()
	env := &installEnv{
		root:      root,
		current:   filepath.Join(root, "bank_0"),
		inactive:  filepath.Join(root, "bank_1"),
		pointer:   filepath.Join(root, "active_bank"),
		remounter: &fakeRemounter{},
		runner:    &fakeRunner{},
	}
	require.NoError(t, os.Mkdir(env.current, 0o755))
	require.NoError(t, os.WriteFile(env.pointer, []byte(env.current+"\n"), 0o644))

	return env
}

func (env *installEnv) options(extra ...Option) []Option {
	return append([]Option{
		WithBankDir(env.current),
		WithPointerFile(env.pointer),
		WithRemounter(env.remounter),
		WithScriptRunner(env.runner.run),
	}, extra...)
}

func (env *installEnv) installer(t *testing.T, extra ...Option) *Installer {
	t.Helper()
	inst, err := NewInstaller(env.options(extra...)...)
	require.NoError(t, err)

	return inst
}

func (env *installEnv) stage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(env.root, "image")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func (env *installEnv) pointerContent(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(env.pointer)
	require.NoError(t, err)

	return string(b)
}

func validBundle(t *testing.T) []byte {
	return buildTar(t, true,
		entry{name: DefaultExecutable, body: "binary", mode: 0o644},
		entry{name: "etc/version", body: "20.0.18\n"},
	)
}

func TestInstaller_Success(t *testing.T) {
	require := require.New(t)
	env := newInstallEnv(t)

	// leftovers from an older install must be cleared
	require.NoError(os.MkdirAll(filepath.Join(env.inactive, "stale"), 0o755))

	res, err := env.installer(t).Install(context.Background(), env.stage(t, withPackageHeader(validBundle(t))))
	require.NoError(err)
	require.Equal(Bank1, res.Bank)
	require.Equal(env.inactive, res.Dir)
	require.True(res.Stripped)
	require.False(res.RanScript)
	require.True(res.PointerUpdated)

	info, err := os.Stat(filepath.Join(env.inactive, DefaultExecutable))
	require.NoError(err)
	require.NotZero(info.Mode().Perm()&0o111, "executable bit not set")

	require.FileExists(filepath.Join(env.inactive, "etc", "version"))
	require.NoFileExists(filepath.Join(env.inactive, bundleFileName))
	require.NoDirExists(filepath.Join(env.inactive, "stale"))

	require.Equal(env.inactive+"\n", env.pointerContent(t))

	// rw only, no lock-fs
	require.Equal([]bool{false}, env.remounter.modes())
}

func TestInstaller_RunsInstallScript(t *testing.T) {
	require := require.New(t)
	env := newInstallEnv(t)
	env.runner.onRun = func(dir string) error {
		// the script produces the executable
		return os.WriteFile(filepath.Join(dir, DefaultExecutable), []byte("built"), 0o600)
	}

	bundle := buildTar(t, false, entry{name: InstallScript, body: "#!/bin/sh\n", mode: 0o644})
	res, err := env.installer(t).Install(context.Background(), env.stage(t, bundle))
	require.NoError(err)
	require.True(res.RanScript)
	require.False(res.Stripped)

	require.Len(env.runner.calls, 1)
	require.Equal(env.inactive, env.runner.calls[0].dir)
	require.Equal(filepath.Join(env.inactive, InstallScript), env.runner.calls[0].script)
	require.Equal(env.inactive+"\n", env.pointerContent(t))
}

func TestInstaller_NoExecutableKeepsPointer(t *testing.T) {
	require := require.New(t)
	env := newInstallEnv(t)

	bundle := buildTar(t, true, entry{name: "README", body: "nothing to run"})
	res, err := env.installer(t, WithLockFS(true)).Install(context.Background(), env.stage(t, bundle))
	require.NoError(err)
	require.False(res.PointerUpdated)
	require.Equal(Bank1, res.Bank)
	require.FileExists(filepath.Join(env.inactive, "README"))

	require.Equal(env.current+"\n", env.pointerContent(t))
	require.Equal([]bool{false, true}, env.remounter.modes())
}

func TestInstaller_FailuresLeavePointerUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		bundle  func(t *testing.T) []byte
		setup   func(env *installEnv)
		wantErr error
	}{
		{
			name:   "extract failure",
			bundle: func(*testing.T) []byte { return []byte("definitely not an archive, but long enough to be read") },
		},
		{
			name: "install script failure",
			bundle: func(t *testing.T) []byte {
				return buildTar(t, true,
					entry{name: InstallScript, body: "#!/bin/sh\nexit 3\n"},
					entry{name: DefaultExecutable, body: "binary"},
				)
			},
			setup:   func(env *installEnv) { env.runner.err = errors.New("exit status 3") },
			wantErr: ErrInstallScript,
		},
		{
			name: "unsafe archive",
			bundle: func(t *testing.T) []byte {
				return buildTar(t, true, entry{name: "../escape", body: "x"})
			},
			wantErr: ErrUnsafeArchivePath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newInstallEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			_, err := env.installer(t, WithLockFS(true)).Install(context.Background(), env.stage(t, tt.bundle(t)))
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}

			assert.Equal(t, env.current+"\n", env.pointerContent(t))
			// read-only again whatever the outcome
			assert.Equal(t, []bool{false, true}, env.remounter.modes())
		})
	}
}

func TestInstaller_RemountFailureAbortsEarly(t *testing.T) {
	env := newInstallEnv(t)
	env.remounter.err = errors.New("permission denied")

	_, err := env.installer(t, WithLockFS(true)).Install(context.Background(), env.stage(t, validBundle(t)))
	require.Error(t, err)
	require.NoDirExists(t, env.inactive)
	require.Equal(t, env.current+"\n", env.pointerContent(t))
}

func TestInstaller_RealInstallScript(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	require := require.New(t)
	env := newInstallEnv(t)

	bundle := buildTar(t, true, entry{
		name: InstallScript,
		body: "#!/bin/sh\nset -e\nprintf 'built' > " + DefaultExecutable + "\n",
	})

	inst, err := NewInstaller(
		WithBankDir(env.current),
		WithPointerFile(env.pointer),
		WithRemounter(NopRemounter),
	)
	require.NoError(err)

	res, err := inst.Install(context.Background(), env.stage(t, bundle))
	require.NoError(err)
	require.True(res.RanScript)
	require.Equal(env.inactive+"\n", env.pointerContent(t))

	failing := buildTar(t, true, entry{name: InstallScript, body: "#!/bin/sh\necho broken >&2\nexit 4\n"})
	_, err = inst.Install(context.Background(), env.stage(t, failing))
	require.ErrorIs(err, ErrInstallScript)
	require.Contains(err.Error(), "exit status 4")
}

func TestWriteFileAtomic(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "active_bank")

	require.NoError(writeFileAtomic(path, []byte("first\n")))
	require.NoError(writeFileAtomic(path, []byte("second\n")))

	b, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal("second\n", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(err)
	require.Len(entries, 1, "temporary files left behind")
}

func TestNewInstaller_Options(t *testing.T) {
	_, err := NewInstaller(WithBankDir("/system/gateway/current"))
	assert.ErrorIs(t, err, ErrInvalidBank)

	_, err = NewInstaller(WithSandbox(""))
	assert.Error(t, err)
	_, err = NewInstaller(WithRemounter(nil))
	assert.Error(t, err)
	_, err = NewInstaller(WithScriptRunner(nil))
	assert.Error(t, err)
	_, err = NewInstaller(WithExecutable(""))
	assert.Error(t, err)

}
