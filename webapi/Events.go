/*
File Name:  Events.go
Copyright:  2024 Cratenet s.r.o.

Websocket stream of routing table changes, for UIs that want to render the
table live without polling.
*/

package webapi

import (
	"encoding/hex"
	"net/http"

	"github.com/cratenet/core/dht"
)

type apiEventRecord struct {
	Type        string `json:"type"`        // "added", "updated", "removed"
	NodeID      string `json:"nodeid"`      // Node ID, hex encoded
	BucketIndex int    `json:"bucketindex"` // Bucket the change happened in
}

/*
apiEventsStream streams routing table mutations over a websocket, one JSON record per change
Request:    GET /events/ws
Result:     Upgrades to websocket. Closes when the client disconnects.
*/
func (api *WebapiInstance) apiEventsStream(w http.ResponseWriter, r *http.Request) {
	connection, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "", http.StatusBadRequest)
		return
	}
	defer connection.Close()

	events, unsubscribe := api.Backend.SubscribeRoutingEvents()
	defer unsubscribe()

	for event := range events {
		record := apiEventRecord{NodeID: hex.EncodeToString(event.NodeID), BucketIndex: event.BucketIndex}
		switch event.Type {
		case dht.MutationAdded:
			record.Type = "added"
		case dht.MutationUpdated:
			record.Type = "updated"
		case dht.MutationRemoved:
			record.Type = "removed"
		}

		if err := connection.WriteJSON(record); err != nil {
			return
		}
	}
}
