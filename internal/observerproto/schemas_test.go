package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"antcolony.ai/internal/observerproto"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSONValue round-trips v through encoding/json so the validator sees plain JSON values.
func asJSONValue(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(asJSONValue(t, v)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "subscribe.schema.json"), observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		FieldEveryTicks: 10,
		Channels:        []string{"to_food"},
	})

	validate(compile(t, "bootstrap.schema.json"), observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		ColonyID:        "colony_1",
		Run:             1,
		Tick:            0,
		Params: observerproto.ColonyParams{
			TickRateHz:       20,
			GridWidth:        100,
			GridHeight:       100,
			Seed:             1,
			MaxConcentration: 5,
			FieldLevels:      observerproto.FieldLevels,
			Nest:             [2]float64{50, 50},
			NestRadius:       2,
			Boundary:         "bounce",
		},
	})

	validate(compile(t, "tick.schema.json"), observerproto.TickMsg{
		Type:               "TICK",
		ProtocolVersion:    observerproto.Version,
		Run:                1,
		Tick:               12,
		FoodCollectedDelta: 1,
		Nest:               observerproto.NestState{Pos: [2]float64{50, 50}, Radius: 2, Delivered: 3},
		Food:               []observerproto.FoodState{{ID: 1, Pos: [2]float64{10, 80}, Radius: 4, Remaining: 60, Initial: 75}},
		Agents:             []observerproto.AgentState{{ID: 0, Pos: [2]float64{50.5, 49}, Heading: 1.2, Carrying: true, State: "returning"}},
		Requests:           []string{"TUNE"},
	})

	validate(compile(t, "field.schema.json"), observerproto.FieldMsg{
		Type:            "FIELD",
		ProtocolVersion: observerproto.Version,
		Run:             1,
		Tick:            10,
		Channel:         "to_home",
		Width:           100,
		Height:          100,
		Levels:          observerproto.FieldLevels,
		Max:             5,
		RLE:             "AAAQJw==",
	})
}

func TestSchemas_RejectBadMessages(t *testing.T) {
	tick := compile(t, "tick.schema.json")
	bad := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Run:             1,
		Tick:            1,
		Agents:          []observerproto.AgentState{{Pos: [2]float64{1, 1}, State: "sleeping"}},
	}
	if err := tick.Validate(asJSONValue(t, bad)); err == nil {
		t.Fatalf("unknown agent state accepted")
	}

	sub := compile(t, "subscribe.schema.json")
	if err := sub.Validate(asJSONValue(t, observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: "0.1", Channels: []string{"alarm"}})); err == nil {
		t.Fatalf("unknown channel accepted")
	}
}
