// Package mqtt is tether's endpoint driver. It connects to the broker
// with Eclipse Paho v2's [autopaho] connection manager and hands the
// supervisor a [Session] to publish through.
//
// On every (re-)connect the session publishes a retained "online"
// message to the availability topic, optionally publishes a Home
// Assistant discovery config for the status sensor, and re-subscribes
// to the configured topic filters. A retained "offline" will message
// marks the device unavailable on unexpected disconnects.
//
// autopaho keeps reconnecting in the background after the first
// CONNACK. The supervisor never rebuilds a session, so that background
// reconnection is the only endpoint recovery there is.
package mqtt
