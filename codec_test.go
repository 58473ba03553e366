package pansim

import "testing"

func TestVisitFrameRoundTrip(t *testing.T) {
	frame := VisitFrame{
		AttrNames: []string{"masked"},
		Rows: []Visit{
			{LID: 1, PID: 2, Group: 0, State: 1, Behavior: 0, StartTime: 0, EndTime: 10, Attrs: []int8{1}},
			{LID: 1, PID: 3, Group: 1, State: 0, Behavior: 1, StartTime: 5, EndTime: 15, Attrs: []int8{0}},
		},
	}
	env, err := EncodeVisitFrame(frame)
	if err != nil {
		t.Fatalf("EncodeVisitFrame: %v", err)
	}
	got, err := DecodeVisitFrame(env)
	if err != nil {
		t.Fatalf("DecodeVisitFrame: %v", err)
	}
	assertVisitFrameEqual(t, frame, got)
}

func TestVisitOutputFrameRoundTrip(t *testing.T) {
	frame := VisitOutputFrame{
		AttrNames: []string{"masked"},
		Rows: []VisitOutput{
			{LID: 1, PID: 2, InfProb: 0.5, NContacts: 3, AttrCounts: []int32{2}},
		},
	}
	env, err := EncodeVisitOutputFrame(frame)
	if err != nil {
		t.Fatalf("EncodeVisitOutputFrame: %v", err)
	}
	got, err := DecodeVisitOutputFrame(env)
	if err != nil {
		t.Fatalf("DecodeVisitOutputFrame: %v", err)
	}
	if len(got.Rows) != len(frame.Rows) || got.Rows[0] != frame.Rows[0] {
		t.Errorf("round trip mismatch: got %+v, want %+v", got.Rows, frame.Rows)
	}
}

func TestStateFrameRoundTrip(t *testing.T) {
	frame := StateFrame{
		Rows: []PersonState{
			{PID: 1, Group: 0, CurrentState: 2, NextState: NullState, DwellTime: NullDwellTime, Seed: 99},
		},
	}
	env, err := EncodeStateFrame(frame)
	if err != nil {
		t.Fatalf("EncodeStateFrame: %v", err)
	}
	got, err := DecodeStateFrame(env)
	if err != nil {
		t.Fatalf("DecodeStateFrame: %v", err)
	}
	if len(got.Rows) != len(frame.Rows) || got.Rows[0] != frame.Rows[0] {
		t.Errorf("round trip mismatch: got %+v, want %+v", got.Rows, frame.Rows)
	}
}

func TestDecodeEnvelopeRejectsSchemaMismatch(t *testing.T) {
	env, err := EncodeVisitFrame(VisitFrame{})
	if err != nil {
		t.Fatalf("EncodeVisitFrame: %v", err)
	}
	if _, err := DecodeStateFrame(env); err == nil {
		t.Fatal("expected a schema mismatch error decoding a visit envelope as a state frame")
	} else if !IsKind(err, TransportError) {
		t.Errorf("error kind = %v, want TransportError", err)
	}
}

func TestEncodeEnvelopeCompressesLargePayloads(t *testing.T) {
	rows := make([]Visit, 1000)
	for i := range rows {
		rows[i] = Visit{LID: int64(i), PID: int64(i), StartTime: 0, EndTime: 10}
	}
	frame := VisitFrame{Rows: rows}
	env, err := EncodeVisitFrame(frame)
	if err != nil {
		t.Fatalf("EncodeVisitFrame: %v", err)
	}
	if !env.Compressed {
		t.Error("expected a large payload to be compressed")
	}
	got, err := DecodeVisitFrame(env)
	if err != nil {
		t.Fatalf("DecodeVisitFrame: %v", err)
	}
	if len(got.Rows) != len(frame.Rows) {
		t.Errorf("got %d rows after round trip through compression, want %d", len(got.Rows), len(frame.Rows))
	}
}

func assertVisitFrameEqual(t *testing.T, want, got VisitFrame) {
	t.Helper()
	if len(want.Rows) != len(got.Rows) {
		t.Fatalf("got %d rows, want %d", len(got.Rows), len(want.Rows))
	}
	for i := range want.Rows {
		w, g := want.Rows[i], got.Rows[i]
		if w.LID != g.LID || w.PID != g.PID || w.Group != g.Group || w.State != g.State ||
			w.Behavior != g.Behavior || w.StartTime != g.StartTime || w.EndTime != g.EndTime {
			t.Errorf("row %d scalar fields differ: got %+v, want %+v", i, g, w)
		}
		if len(w.Attrs) != len(g.Attrs) {
			t.Fatalf("row %d: got %d attrs, want %d", i, len(g.Attrs), len(w.Attrs))
		}
		for j := range w.Attrs {
			if w.Attrs[j] != g.Attrs[j] {
				t.Errorf("row %d attr %d: got %d, want %d", i, j, g.Attrs[j], w.Attrs[j])
			}
		}
	}
}
