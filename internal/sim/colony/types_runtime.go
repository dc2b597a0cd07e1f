package colony

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry is written once per tick. Config is set on the first tick of a run and
// Requests lists the control requests applied before the step, so a run can be replayed
// from the log alone.
type TickLogEntry struct {
	Run      uint64            `json:"run"`
	Tick     uint64            `json:"tick"`
	Config   *Config           `json:"config,omitempty"`
	Requests []RecordedRequest `json:"requests,omitempty"`
	Stats    StepStats         `json:"stats"`
	Digest   string            `json:"digest"`
}

type RequestKind string

const (
	KindReset    RequestKind = "RESET"
	KindRelocate RequestKind = "RELOCATE_FOOD"
	KindTune     RequestKind = "TUNE"
	KindSnapshot RequestKind = "SNAPSHOT"
)

// KindPause and KindResume stop and restart stepping. They change no simulation state
// and are never recorded in the tick log.
const (
	KindPause  RequestKind = "PAUSE"
	KindResume RequestKind = "RESUME"
)

type RecordedRequest struct {
	Kind   RequestKind `json:"kind"`
	Speed  *float64    `json:"speed,omitempty"`
	Follow *float64    `json:"follow,omitempty"`
}

// AuditEntry records an operator action against the colony.
type AuditEntry struct {
	Run    uint64         `json:"run"`
	Tick   uint64         `json:"tick"`
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	Reason string         `json:"reason,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Apply re-executes a recorded request against an engine. Resets are not replayed here:
// the next run's first entry carries its config.
func (r RecordedRequest) Apply(e *Engine) error {
	switch r.Kind {
	case KindRelocate:
		e.RelocateFood()
	case KindTune:
		return e.Tune(r.Speed, r.Follow)
	}
	return nil
}
