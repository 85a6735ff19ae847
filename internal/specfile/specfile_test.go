package specfile

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway.spec")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestStore_Load(t *testing.T) {
	require := require.New(t)

	path := writeFile(t, "# gateway settings\r\n"+
		"default_ip = 10.11.14.20\r\n"+
		"  INTERFACE=eth1\n"+
		"// legacy\n"+
		"garbage line\n"+
		"LOCK_FS = True\n"+
		"INSTRUMENT_SN = 123456\n"+
		"BAD_NUMBER = 12x\n")

	s := NewFile(path)
	require.NoError(s.Load())

	v, ok := s.Get("DEFAULT_IP")
	require.True(ok)
	require.Equal("10.11.14.20", v)

	v, ok = s.Get("interface")
	require.True(ok)
	require.Equal("eth1", v)

	lock, ok := s.Bool("lock_fs")
	require.True(ok)
	require.True(lock)

	sn, ok := s.Uint32("INSTRUMENT_SN")
	require.True(ok)
	require.Equal(uint32(123456), sn)

	n, ok := s.Int("BAD_NUMBER")
	require.True(ok)
	require.Zero(n)

	_, ok = s.Get("legacy")
	require.False(ok)
	_, ok = s.Bool("missing")
	require.False(ok)
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewFile(filepath.Join(t.TempDir(), "none"))
	require.ErrorIs(t, s.Load(), fs.ErrNotExist)
}

func TestStore_SetAndSave(t *testing.T) {
	require := require.New(t)

	path := writeFile(t, "# keep me\nDEFAULT_IP = 10.11.14.20\nINTERFACE = eth0\n")
	s := NewFile(path)
	require.NoError(s.Load())

	require.True(s.Set("default_ip", "10.11.14.5"))
	require.False(s.Set("SANDBOX", "/tmp/stage"))
	require.True(s.Remove("INTERFACE"))
	require.False(s.Remove("INTERFACE"))
	require.NoError(s.Save())

	data, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal("# keep me\ndefault_ip = 10.11.14.5\n\nSANDBOX = /tmp/stage\n", string(data))

	again := NewFile(path)
	require.NoError(again.Load())
	v, _ := again.Get("DEFAULT_IP")
	require.Equal("10.11.14.5", v)
	_, ok := again.Get("INTERFACE")
	require.False(ok)
}

func TestStore_EEPROM(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "eeprom.txt")
	s := NewEEPROM(path, EEPROMCapacity, EEPROMHeader)
	s.SetUint("INSTRUMENT_SN", 4242)
	require.NoError(s.Save())

	data, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal("CPHD01\nINSTRUMENT_SN = 4242\n\x00", string(data))

	// pad the image the way an EEPROM device reads back
	padded := append(data, make([]byte, 64)...)
	require.NoError(os.WriteFile(path, padded, 0o644))

	back := NewEEPROM(path, EEPROMCapacity, EEPROMHeader)
	require.NoError(back.Load())
	sn, ok := back.Uint32("INSTRUMENT_SN")
	require.True(ok)
	require.Equal(uint32(4242), sn)
}

func TestStore_EEPROMUnformatted(t *testing.T) {
	require := require.New(t)

	path := writeFile(t, "INSTRUMENT_SN = 99\n")
	s := NewEEPROM(path, EEPROMCapacity, EEPROMHeader)
	require.NoError(s.Load())

	_, ok := s.Get("INSTRUMENT_SN")
	require.False(ok)
}

func TestStore_EEPROMCapacity(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "eeprom.txt")
	s := NewEEPROM(path, 32, EEPROMHeader)
	s.Set("NOTE", strings.Repeat("x", 40))

	require.ErrorIs(s.Save(), ErrCapacityExceeded)
	_, err := os.Stat(path)
	require.ErrorIs(err, fs.ErrNotExist)
}
