package pansim

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Time budgets for the behavior-service connection, the same knobs the
// websocket pack example sets for its long-lived server push loop.
const (
	remoteWriteWait = 5 * time.Second
	remoteReadLimit = 64 << 20
)

// RemoteBehaviorModel is the co-process BehaviorModel: instead of
// computing the next state/visit frame in-process, it round-trips the
// current state and visit outputs to an external behavior service over
// a persistent websocket connection and waits for the next tick's
// frames back. One connection serves one behavior rank; distsim dials
// one per rank hosting a BehaviorActor.
type RemoteBehaviorModel struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialRemoteBehaviorModel opens the websocket connection a behavior
// rank holds open for the lifetime of the run.
func DialRemoteBehaviorModel(ctx context.Context, url string) (*RemoteBehaviorModel, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, Wrapf(TransportError, err, "dialing behavior service %q", url)
	}
	conn.SetReadLimit(remoteReadLimit)
	return &RemoteBehaviorModel{conn: conn}, nil
}

// InitialVisitFrame rountrips the start state through the service with
// an empty visit-output frame, mirroring how the reference model
// stamps the first tick's visit schedule before any contact has
// happened.
func (r *RemoteBehaviorModel) InitialVisitFrame(startState StateFrame) (VisitFrame, error) {
	_, visit, err := r.RunBehaviorModel(startState, VisitOutputFrame{})
	return visit, err
}

// RunBehaviorModel sends the current state and visit outputs as two
// successive JSON text websocket messages and reads the service's two
// response messages (next state, then next visit) back. The gob frame
// envelopes are identical to the ones the in-process rank channels
// carry, so a behavior service can be implemented in any language that
// can decode them, not just Go -- the bridge this type exists for.
func (r *RemoteBehaviorModel) RunBehaviorModel(state StateFrame, visitOutputs VisitOutputFrame) (StateFrame, VisitFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.sendFrame(stateSchema, state); err != nil {
		return StateFrame{}, VisitFrame{}, err
	}
	if err := r.sendFrame(visitOutputSchema, visitOutputs); err != nil {
		return StateFrame{}, VisitFrame{}, err
	}

	nextState, err := r.recvStateFrame()
	if err != nil {
		return StateFrame{}, VisitFrame{}, err
	}
	nextVisit, err := r.recvVisitFrame()
	if err != nil {
		return StateFrame{}, VisitFrame{}, err
	}
	return nextState, nextVisit, nil
}

func (r *RemoteBehaviorModel) sendFrame(schema string, v interface{}) error {
	env, err := encodeEnvelope(schema, v)
	if err != nil {
		return err
	}
	if err := r.conn.SetWriteDeadline(time.Now().Add(remoteWriteWait)); err != nil {
		return Wrap(TransportError, err, "setting behavior service write deadline")
	}
	if err := r.conn.WriteJSON(env); err != nil {
		return Wrapf(TransportError, err, "sending %s frame to behavior service", schema)
	}
	return nil
}

func (r *RemoteBehaviorModel) recvStateFrame() (StateFrame, error) {
	var env Envelope
	if err := r.conn.ReadJSON(&env); err != nil {
		return StateFrame{}, Wrap(TransportError, err, "reading state frame from behavior service")
	}
	return DecodeStateFrame(&env)
}

func (r *RemoteBehaviorModel) recvVisitFrame() (VisitFrame, error) {
	var env Envelope
	if err := r.conn.ReadJSON(&env); err != nil {
		return VisitFrame{}, Wrap(TransportError, err, "reading visit frame from behavior service")
	}
	return DecodeVisitFrame(&env)
}

// Close shuts down the underlying connection with a normal close
// handshake, matching the teacher websocket example's closeWebsocket.
func (r *RemoteBehaviorModel) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(remoteWriteWait))
	return r.conn.Close()
}
