/*
Copyright (C) 2026  tlog contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package stream exposes a View's snapshot to a remote peer over a
// websocket connection, for a replica or recovery process that wants to
// tail recent operations live rather than read the directory directly.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/launix-de/tlog/tlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireOp is the JSON projection of an Operation sent over the wire; field
// presence mirrors the variant actually produced.
type wireOp struct {
	Tag     string `json:"tag"`
	Seq     int64  `json:"seq_no"`
	Term    int64  `json:"primary_term"`
	Version int64  `json:"version,omitempty"`

	ID     string `json:"id,omitempty"`
	Type   string `json:"type,omitempty"`
	Source []byte `json:"source,omitempty"`

	UIDField string `json:"uid_field,omitempty"`
	UIDValue string `json:"uid_value,omitempty"`

	Reason string `json:"reason,omitempty"`
}

func toWireOp(op tlog.Operation) wireOp {
	switch o := op.(type) {
	case tlog.IndexOp:
		return wireOp{Tag: "index", Seq: o.Seq, Term: o.Term, Version: o.Version, ID: o.ID, Type: o.Type, Source: o.Source}
	case tlog.DeleteOp:
		return wireOp{Tag: "delete", Seq: o.Seq, Term: o.Term, Version: o.Version, UIDField: o.UIDField, UIDValue: o.UIDValue}
	case tlog.NoOpOp:
		return wireOp{Tag: "noop", Seq: o.Seq, Term: o.Term, Reason: o.Reason}
	default:
		return wireOp{Tag: "unknown"}
	}
}

// Handler upgrades the request to a websocket and streams every operation
// visible in a fresh View's snapshot, one JSON message per operation,
// followed by a final {"tag":"end"} message. The view is closed (releasing
// its retention pin) once the stream ends, whether the peer disconnects
// early or the snapshot is exhausted.
func Handler(log *tlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		view := log.NewView()
		defer view.Close()

		snap, err := view.Snapshot()
		if err != nil {
			ws.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"tag":"error","message":%q}`, err.Error())))
			return
		}

		for {
			op, _, ok, err := snap.Next()
			if err != nil {
				ws.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"tag":"error","message":%q}`, err.Error())))
				return
			}
			if !ok {
				break
			}
			body, err := json.Marshal(toWireOp(op))
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
		ws.WriteMessage(websocket.TextMessage, []byte(`{"tag":"end"}`))
	}
}
