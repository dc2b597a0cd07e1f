package colony

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// Digest hashes every piece of state that influences future ticks except the random
// source, which is fully determined by the seed and the ticks already taken.
func (e *Engine) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, e.tick)
	digestWriteU64(h, &tmp, e.nextFoodID)
	digestWriteF64(h, &tmp, e.cfg.AgentSpeed)
	digestWriteF64(h, &tmp, e.cfg.FollowProbability)

	ns := e.nest.Stats()
	digestWriteF64(h, &tmp, ns.Delivered)
	digestWriteF64(h, &tmp, ns.Pending)
	digestWriteU64(h, &tmp, uint64(ns.Spawned))

	digestWriteU64(h, &tmp, uint64(len(e.food)))
	for _, src := range e.food {
		digestWriteU64(h, &tmp, src.ID)
		digestWriteF64(h, &tmp, src.X)
		digestWriteF64(h, &tmp, src.Y)
		digestWriteF64(h, &tmp, src.Radius)
		digestWriteF64(h, &tmp, src.Remaining())
	}

	digestWriteU64(h, &tmp, uint64(len(e.agents)))
	for i := range e.agents {
		a := &e.agents[i]
		digestWriteF64(h, &tmp, a.X)
		digestWriteF64(h, &tmp, a.Y)
		digestWriteF64(h, &tmp, a.Heading)
		digestWriteF64(h, &tmp, a.Carrying)
		digestWriteU64(h, &tmp, uint64(a.State))
		digestWriteU64(h, &tmp, uint64(a.dropCooldown))
	}

	buf := make([]byte, 0, 8*e.field.Width()*e.field.Height())
	for ch := range e.field.cells {
		buf = buf[:0]
		for _, v := range e.field.cells[ch] {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		h.Write(buf)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hash.Hash, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}
