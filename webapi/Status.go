/*
File Name:  Status.go
Copyright:  2024 Cratenet s.r.o.
*/

package webapi

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/cratenet/core"
	"github.com/cratenet/core/dht"
)

func apiTest(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type apiResponseStatus struct {
	Status        int  `json:"status"`        // Status code: 0 = Ok.
	IsConnected   bool `json:"isconnected"`   // Whether connected to the network.
	CountPeerList int  `json:"countpeerlist"` // Count of peers in the peer list, including ones not yet verified.
	CountRouting  int  `json:"countrouting"`  // Count of verified peers in the routing table.
}

/*
apiStatus returns the current connectivity status to the network
Request:    GET /status
Result:     200 with JSON structure apiResponseStatus
*/
func (api *WebapiInstance) apiStatus(w http.ResponseWriter, r *http.Request) {
	status := apiResponseStatus{Status: 0, CountPeerList: api.Backend.PeerlistCount(), CountRouting: api.Backend.RoutingTable().NumNodes()}
	status.IsConnected = status.CountRouting >= 1

	EncodeJSON(api.Backend, w, r, status)
}

type apiResponsePeerSelf struct {
	PeerID string `json:"peerid"` // Peer ID. This is derived from the public key in compressed form.
	NodeID string `json:"nodeid"` // Node ID. This is the blake3 hash of the peer ID and used for routing.
}

/*
apiPeerSelf provides information about the self peer details
Request:    GET /peer/self
Result:     200 with JSON structure apiResponsePeerSelf
*/
func (api *WebapiInstance) apiPeerSelf(w http.ResponseWriter, r *http.Request) {
	response := apiResponsePeerSelf{}
	response.NodeID = hex.EncodeToString(api.Backend.SelfNodeID())

	_, publicKey := api.Backend.ExportPrivateKey()
	response.PeerID = hex.EncodeToString(publicKey.SerializeCompressed())

	EncodeJSON(api.Backend, w, r, response)
}

type apiPeerRecord struct {
	NodeID      string    `json:"nodeid"`      // Node ID, hex encoded
	Addresses   []string  `json:"addresses"`   // Known addresses as IP:Port
	Status      string    `json:"status"`      // "connected", "disconnected", "unknown"
	LastSeen    time.Time `json:"lastseen"`    // Time of last liveness evidence
	Reliability float64   `json:"reliability"` // Success ratio of past interactions, 0..1
}

type apiResponsePeers struct {
	Peers []apiPeerRecord `json:"peers"`
}

/*
apiStatusPeers lists all peers currently in the routing table
Request:    GET /status/peers
Result:     200 with JSON structure apiResponsePeers
*/
func (api *WebapiInstance) apiStatusPeers(w http.ResponseWriter, r *http.Request) {
	response := apiResponsePeers{Peers: []apiPeerRecord{}}

	for _, node := range api.Backend.RoutingTable().Nodes() {
		record := apiPeerRecord{
			NodeID:      hex.EncodeToString(node.ID),
			Status:      connectionStatusText(node.Status),
			LastSeen:    node.LastSeen,
			Reliability: node.ReliabilityScore(),
		}
		for _, address := range node.Addresses {
			record.Addresses = append(record.Addresses, address.String())
		}
		response.Peers = append(response.Peers, record)
	}

	EncodeJSON(api.Backend, w, r, response)
}

type apiResponseBuckets struct {
	NodesPerBucket []int `json:"nodesperbucket"` // Count of nodes per bucket, ordered by distance bit
	Total          int   `json:"total"`
}

/*
apiStatusBuckets returns the routing table occupancy per bucket
Request:    GET /status/buckets
Result:     200 with JSON structure apiResponseBuckets
*/
func (api *WebapiInstance) apiStatusBuckets(w http.ResponseWriter, r *http.Request) {
	response := apiResponseBuckets{NodesPerBucket: api.Backend.RoutingTable().NodesPerBucket()}
	for _, count := range response.NodesPerBucket {
		response.Total += count
	}

	EncodeJSON(api.Backend, w, r, response)
}

type apiResponseNat struct {
	Available     bool   `json:"available"`     // Whether a NAT verdict was reached yet.
	Class         string `json:"class"`         // "UPnP", "Public", "Non-Public", "Unknown"
	PublicAddress string `json:"publicaddress"` // External IP:Port, if known
}

/*
apiStatusNat returns the NAT classification verdict once available
Request:    GET /status/nat
Result:     200 with JSON structure apiResponseNat
*/
func (api *WebapiInstance) apiStatusNat(w http.ResponseWriter, r *http.Request) {
	response := apiResponseNat{}

	if status, valid := api.Backend.NatStatus(); valid {
		response.Available = true
		response.Class = status.Class.String()
		if status.PublicAddress != nil {
			response.PublicAddress = status.PublicAddress.String()
		}
	} else {
		response.Class = core.NatUnknown.String()
	}

	EncodeJSON(api.Backend, w, r, response)
}

type apiBlockedRecord struct {
	NodeID string `json:"nodeid"` // Node ID, hex encoded
	Reason string `json:"reason"`
}

/*
apiStatusBlocked lists all blacklisted peers
Request:    GET /status/blocked
Result:     200 with JSON array of apiBlockedRecord
*/
func (api *WebapiInstance) apiStatusBlocked(w http.ResponseWriter, r *http.Request) {
	records := []apiBlockedRecord{}
	api.Backend.Blacklist.Iterate(func(nodeID []byte, reason string) {
		records = append(records, apiBlockedRecord{NodeID: hex.EncodeToString(nodeID), Reason: reason})
	})

	EncodeJSON(api.Backend, w, r, records)
}

func connectionStatusText(status dht.ConnectionStatus) string {
	switch status {
	case dht.StatusConnected:
		return "connected"
	case dht.StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
