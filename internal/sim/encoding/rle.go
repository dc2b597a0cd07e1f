package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a sequence of field levels into base64(varint pairs).
// The pairs are (level, run_len) repeated.
func EncodeRLE(levels []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(levels) {
		lv := levels[i]
		run := 1
		for j := i + 1; j < len(levels) && levels[j] == lv && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(lv))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// maxDecodedCells bounds decoding of untrusted input.
const maxDecodedCells = 1 << 24

func DecodeRLE(b64 string) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		lv, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if lv > 0xFFFF {
			return nil, fmt.Errorf("level too large: %d", lv)
		}
		if run > uint64(maxDecodedCells-len(out)) {
			return nil, fmt.Errorf("run of %d exceeds %d cells", run, maxDecodedCells)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, uint16(lv))
		}
	}
	return out, nil
}
