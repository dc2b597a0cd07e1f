package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// FieldLevels is the number of quantization levels used in FIELD frames.
const FieldLevels = 256

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// FieldEveryTicks is how often FIELD frames are sent. 0 picks the server default.
	FieldEveryTicks int `json:"field_every_ticks"`
	// Channels selects field channels ("to_food", "to_home"). Empty means both.
	Channels []string `json:"channels,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	ColonyID        string       `json:"colony_id"`
	Run             uint64       `json:"run"`
	Tick            uint64       `json:"tick"`
	Params          ColonyParams `json:"colony_params"`
}

type ColonyParams struct {
	TickRateHz       int        `json:"tick_rate_hz"`
	GridWidth        int        `json:"grid_width"`
	GridHeight       int        `json:"grid_height"`
	Seed             int64      `json:"seed"`
	MaxConcentration float64    `json:"max_concentration"`
	FieldLevels      int        `json:"field_levels"`
	Nest             [2]float64 `json:"nest"`
	NestRadius       float64    `json:"nest_radius"`
	Boundary         string     `json:"boundary"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Run             uint64 `json:"run"`
	Tick            uint64 `json:"tick"`

	FoodCollectedDelta float64 `json:"food_collected_delta"`
	Depleted           int     `json:"depleted,omitempty"`
	Spawned            int     `json:"spawned,omitempty"`

	Nest     NestState    `json:"nest"`
	Food     []FoodState  `json:"food"`
	Agents   []AgentState `json:"agents"`
	Requests []string     `json:"requests,omitempty"`
}

type NestState struct {
	Pos       [2]float64 `json:"pos"`
	Radius    float64    `json:"radius"`
	Delivered float64    `json:"delivered"`
	Spawned   int        `json:"spawned"`
}

type FoodState struct {
	ID        uint64     `json:"id"`
	Pos       [2]float64 `json:"pos"`
	Radius    float64    `json:"radius"`
	Remaining float64    `json:"remaining"`
	Initial   float64    `json:"initial"`
}

type AgentState struct {
	ID       int        `json:"id"`
	Pos      [2]float64 `json:"pos"`
	Heading  float64    `json:"heading"`
	Carrying bool       `json:"carrying"`
	State    string     `json:"state"`
}

// Server -> Client. One pheromone channel, quantized to FieldLevels and RLE encoded
// row-major (x + y*width).
type FieldMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Run             uint64  `json:"run"`
	Tick            uint64  `json:"tick"`
	Channel         string  `json:"channel"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Levels          int     `json:"levels"`
	Max             float64 `json:"max"`
	RLE             string  `json:"rle"`
}
