// Package redispubsub provides a Redis PUBLISH/SUBSCRIBE adapter for hlbus.
//
// Transport name: "redis-pubsub"
//
// Redis pub/sub carries no message headers, so every envelope travels in its
// embedded form. Delivery is at-most-once: subscribers that are not connected
// when a message is published never see it.
//
// Minimal config keys:
// - addr: "host:port" (default "127.0.0.1:6379")
// - channel_prefix: prepended to every subject (optional)
// - channel_size: go-redis receive buffer per subscription (default 256)
// - ping_timeout: connect-time PING bound (default 2s)
//
// Example builder usage:
//
//	bus, _ := hlbus.NewBusBuilder().
//	    WithTransport(redispubsub.TransportName, map[string]any{
//	        "addr":           "localhost:6379",
//	        "channel_prefix": "hl.",
//	    }).
//	    Build()
package redispubsub
