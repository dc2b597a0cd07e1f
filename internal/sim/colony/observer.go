package colony

import (
	"encoding/json"
	"sort"

	"antcolony.ai/internal/observerproto"
	"antcolony.ai/internal/sim/encoding"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - per-tick colony state (TickOut)
// - quantized pheromone frames (DataOut)
//
// All observer state is maintained by the loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	FieldEveryTicks int
	Channels        []Channel
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID       string
	FieldEveryTicks int
	Channels        []Channel
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	fieldEvery int
	channels   []Channel

	// needField forces a FIELD frame on the next tick (new session, reset, dropped frame).
	needField bool
}

func (r *Runtime) normalizeObserverSettings(every int, chans []Channel) (int, []Channel) {
	if every <= 0 {
		every = r.cfg.FieldEveryTicks
	}
	if len(chans) == 0 {
		chans = []Channel{ToFood, ToHome}
	}
	return every, chans
}

func (r *Runtime) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	every, chans := r.normalizeObserverSettings(req.FieldEveryTicks, req.Channels)
	r.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		dataOut:    req.DataOut,
		fieldEvery: every,
		channels:   chans,
		needField:  true,
	}
}

func (r *Runtime) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := r.observers[req.SessionID]
	if c == nil {
		return
	}
	c.fieldEvery, c.channels = r.normalizeObserverSettings(req.FieldEveryTicks, req.Channels)
	c.needField = true
}

func (r *Runtime) handleObserverLeave(sessionID string) {
	c := r.observers[sessionID]
	if c == nil {
		return
	}
	delete(r.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

// stepObservers streams the tick to every session. With pendingOnly set, as while paused,
// only sessions waiting on a FIELD frame are served.
func (r *Runtime) stepObservers(run uint64, st StepStats, recorded []RecordedRequest, pendingOnly bool) {
	if len(r.observers) == 0 {
		return
	}
	if pendingOnly {
		pending := false
		for _, c := range r.observers {
			pending = pending || c.needField
		}
		if !pending {
			return
		}
	}
	b, err := json.Marshal(r.buildTickMsg(run, st, recorded))
	if err != nil {
		return
	}

	frames := map[Channel][]byte{}
	frame := func(ch Channel) []byte {
		if f, ok := frames[ch]; ok {
			return f
		}
		f, _ := json.Marshal(r.buildFieldMsg(run, st.Tick, ch))
		frames[ch] = f
		return f
	}

	ids := make([]string, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := r.observers[id]
		if pendingOnly && !c.needField {
			continue
		}
		sendLatest(c.tickOut, b)

		due := c.needField || (!pendingOnly && c.fieldEvery > 0 && st.Tick%uint64(c.fieldEvery) == 0)
		if !due {
			continue
		}
		c.needField = false
		for _, ch := range c.channels {
			select {
			case c.dataOut <- frame(ch):
			default:
				// Slow reader: resend on the next tick.
				c.needField = true
			}
		}
	}
}

func (r *Runtime) buildTickMsg(run uint64, st StepStats, recorded []RecordedRequest) observerproto.TickMsg {
	e := r.eng
	ns := e.NestStats()
	msg := observerproto.TickMsg{
		Type:               "TICK",
		ProtocolVersion:    observerproto.Version,
		Run:                run,
		Tick:               st.Tick,
		FoodCollectedDelta: st.FoodCollectedDelta,
		Depleted:           st.Depleted,
		Spawned:            st.Spawned,
		Nest: observerproto.NestState{
			Pos:       [2]float64{ns.X, ns.Y},
			Radius:    ns.Radius,
			Delivered: ns.Delivered,
			Spawned:   ns.Spawned,
		},
		Food:   make([]observerproto.FoodState, 0, len(e.food)),
		Agents: make([]observerproto.AgentState, 0, len(e.agents)),
	}
	for _, f := range e.FoodSources() {
		msg.Food = append(msg.Food, observerproto.FoodState{
			ID:        f.ID,
			Pos:       [2]float64{f.X, f.Y},
			Radius:    f.Radius,
			Remaining: f.Remaining,
			Initial:   f.Initial,
		})
	}
	for i := range e.agents {
		a := &e.agents[i]
		msg.Agents = append(msg.Agents, observerproto.AgentState{
			ID:       a.ID,
			Pos:      [2]float64{a.X, a.Y},
			Heading:  a.Heading,
			Carrying: a.Carrying > 0,
			State:    a.State.String(),
		})
	}
	for _, rr := range recorded {
		msg.Requests = append(msg.Requests, string(rr.Kind))
	}
	return msg
}

func (r *Runtime) buildFieldMsg(run, tick uint64, ch Channel) observerproto.FieldMsg {
	f := r.eng.field
	levels := encoding.Quantize(f.cells[ch], f.Max(), observerproto.FieldLevels)
	return observerproto.FieldMsg{
		Type:            "FIELD",
		ProtocolVersion: observerproto.Version,
		Run:             run,
		Tick:            tick,
		Channel:         ch.String(),
		Width:           f.Width(),
		Height:          f.Height(),
		Levels:          observerproto.FieldLevels,
		Max:             f.Max(),
		RLE:             encoding.EncodeRLE(levels),
	}
}
