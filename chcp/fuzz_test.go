package chcp

import (
	"bytes"
	"testing"
)

func FuzzDecodeCommand(f *testing.F) {
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0})
	f.Add([]byte{2, 0, 0, 0, 0, 0, 0, 10, 11, 14, 5})
	f.Add([]byte{12, 1, 2, 3, 4, 5, 6, 0, 0, 0, 0, 4, 0xc1})
	f.Add([]byte{4, 0, 0, 0, 0, 0, 0, 4, 0, 4, 1, 7})
	f.Add([]byte{4, 0, 0, 0, 0, 0, 0, 0xff})
	f.Add([]byte{11, 0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		cmd, err := DecodeCommand(data)
		if err != nil {
			return
		}

		out, err := cmd.Encode()
		if err != nil {
			t.Fatalf("decoded command does not encode: %v", err)
		}
		if !bytes.HasPrefix(data, out) {
			t.Fatalf("encoding is not a prefix of the input: in=%x out=%x", data, out)
		}

		_ = cmd.Type.String()
		_ = cmd.AddressedTo(BroadcastMAC)
	})
}
