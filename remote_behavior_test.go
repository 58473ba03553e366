package pansim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveEchoBehaviorService upgrades one connection and, for each
// state/visit-output pair it receives, writes back the same state
// frame unchanged and a fixed one-row visit frame -- enough to exercise
// the wire protocol without needing a real ReferenceBehaviorModel.
func serveEchoBehaviorService(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var stateEnv Envelope
			if err := conn.ReadJSON(&stateEnv); err != nil {
				return
			}
			state, err := DecodeStateFrame(&stateEnv)
			if err != nil {
				t.Errorf("server decoding state frame: %v", err)
				return
			}

			var voutEnv Envelope
			if err := conn.ReadJSON(&voutEnv); err != nil {
				return
			}
			if _, err := DecodeVisitOutputFrame(&voutEnv); err != nil {
				t.Errorf("server decoding visit output frame: %v", err)
				return
			}

			respState, err := EncodeStateFrame(state)
			if err != nil {
				t.Errorf("server encoding state frame: %v", err)
				return
			}
			if err := conn.WriteJSON(respState); err != nil {
				return
			}

			visit := VisitFrame{Rows: []Visit{{LID: 1, PID: 1, StartTime: 0, EndTime: 10}}}
			respVisit, err := EncodeVisitFrame(visit)
			if err != nil {
				t.Errorf("server encoding visit frame: %v", err)
				return
			}
			if err := conn.WriteJSON(respVisit); err != nil {
				return
			}
		}
	}))
}

func wsURL(t *testing.T, server *httptest.Server) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestRemoteBehaviorModelRoundTripsStateAndVisit(t *testing.T) {
	server := serveEchoBehaviorService(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	remote, err := DialRemoteBehaviorModel(ctx, wsURL(t, server))
	if err != nil {
		t.Fatalf("DialRemoteBehaviorModel: %v", err)
	}
	defer remote.Close()

	state := StateFrame{Rows: []PersonState{
		{PID: 1, Group: 0, CurrentState: 1, NextState: NullState, DwellTime: NullDwellTime},
	}}

	gotState, gotVisit, err := remote.RunBehaviorModel(state, VisitOutputFrame{})
	if err != nil {
		t.Fatalf("RunBehaviorModel: %v", err)
	}
	if len(gotState.Rows) != 1 || gotState.Rows[0] != state.Rows[0] {
		t.Errorf("got state %+v, want the echoed input state %+v", gotState.Rows, state.Rows)
	}
	if len(gotVisit.Rows) != 1 || gotVisit.Rows[0].LID != 1 || gotVisit.Rows[0].PID != 1 {
		t.Errorf("got visit %+v, want a single row for lid=1 pid=1", gotVisit.Rows)
	}
}

func TestRemoteBehaviorModelInitialVisitFrameRoundTrips(t *testing.T) {
	server := serveEchoBehaviorService(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	remote, err := DialRemoteBehaviorModel(ctx, wsURL(t, server))
	if err != nil {
		t.Fatalf("DialRemoteBehaviorModel: %v", err)
	}
	defer remote.Close()

	startState := StateFrame{Rows: []PersonState{
		{PID: 1, Group: 0, CurrentState: 0, NextState: NullState, DwellTime: NullDwellTime},
	}}
	visit, err := remote.InitialVisitFrame(startState)
	if err != nil {
		t.Fatalf("InitialVisitFrame: %v", err)
	}
	if len(visit.Rows) != 1 {
		t.Fatalf("got %d visit rows, want 1", len(visit.Rows))
	}
}

func TestDialRemoteBehaviorModelRejectsBadURL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialRemoteBehaviorModel(ctx, "ws://127.0.0.1:0/ws"); err == nil {
		t.Fatal("expected an error dialing an unreachable behavior service")
	}
}
