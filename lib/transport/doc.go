// Package transport routes I2NP messages between routers over the
// available transport protocols.
//
// # Overview
//
// A Transport delivers messages to a peer named by its router hash and
// owns whatever sockets and sessions that takes. The only transport
// implemented here is SSU, in lib/transport/ssu.
//
// # Muxing
//
// TransportMuxer combines several transports behind the Transport
// interface. Send picks the first compatible transport for a peer and
// keeps using it for that peer until ReleasePeer is called, normally from
// the transport's shutdown callback. The number of peers tracked at once
// is capped by MaxConnections.
//
// # Thread Safety
//
// TransportMuxer is safe for concurrent use.
package transport
