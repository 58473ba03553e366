// Command behaviorsvc hosts a reference BehaviorModel as an external
// co-process, reachable over the same websocket protocol
// pansim.RemoteBehaviorModel speaks. It exists to make the external
// behavior module a runnable example rather than a paper abstraction:
// a real deployment would swap this binary for a service written in
// whatever language the behavior model is implemented in.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/parantapa/pansim"
)

var upgrader = websocket.Upgrader{}

func main() {
	addr := os.Getenv("BEHAVIOR_SERVICE_ADDR")
	if addr == "" {
		addr = ":8800"
	}

	cfg, err := pansim.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	model, err := pansim.LoadDiseaseModel(cfg.DiseaseModelFile)
	if err != nil {
		log.Fatal(err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", serveWebsocket(cfg, model))
	router.HandleFunc("/healthz", serveHealth).Methods(http.MethodGet)

	log.Printf("behavior service listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal(err)
	}
}

func serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// serveWebsocket upgrades the connection and then repeatedly serves
// the (state, visit_output) -> (next_state, next_visit) round trip
// pansim.RemoteBehaviorModel drives, lazily constructing a reference
// behavior model from the first request's state shard.
func serveWebsocket(cfg *pansim.Config, model *pansim.DiseaseModel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade:", err)
			return
		}
		defer conn.Close()

		var behavior pansim.BehaviorModel
		for {
			state, vout, err := readRequest(conn)
			if err != nil {
				return
			}

			if behavior == nil {
				behavior, err = pansim.NewReferenceBehaviorModel(cfg, model, state, nil)
				if err != nil {
					log.Println("building behavior model:", err)
					return
				}
			}

			nextState, nextVisit, err := behavior.RunBehaviorModel(state, vout)
			if err != nil {
				log.Println("running behavior model:", err)
				return
			}

			if err := writeResponse(conn, nextState, nextVisit); err != nil {
				return
			}
		}
	}
}

func readRequest(conn *websocket.Conn) (pansim.StateFrame, pansim.VisitOutputFrame, error) {
	var stateEnv, voutEnv pansim.Envelope
	if err := conn.ReadJSON(&stateEnv); err != nil {
		return pansim.StateFrame{}, pansim.VisitOutputFrame{}, err
	}
	if err := conn.ReadJSON(&voutEnv); err != nil {
		return pansim.StateFrame{}, pansim.VisitOutputFrame{}, err
	}
	state, err := pansim.DecodeStateFrame(&stateEnv)
	if err != nil {
		return pansim.StateFrame{}, pansim.VisitOutputFrame{}, err
	}
	vout, err := pansim.DecodeVisitOutputFrame(&voutEnv)
	if err != nil {
		return pansim.StateFrame{}, pansim.VisitOutputFrame{}, err
	}
	return state, vout, nil
}

func writeResponse(conn *websocket.Conn, state pansim.StateFrame, visit pansim.VisitFrame) error {
	stateEnv, err := pansim.EncodeStateFrame(state)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	if err := conn.WriteJSON(stateEnv); err != nil {
		return err
	}

	visitEnv, err := pansim.EncodeVisitFrame(visit)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return conn.WriteJSON(visitEnv)
}
