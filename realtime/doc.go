// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package realtime pushes change events to websocket clients.

Clients connect to GET /realtime (optionally with ?token=<session token>)
and send subscription frames:

	{"action": "subscribe", "topic": "poll:<id>"}
	{"action": "unsubscribe", "topic": "poll:<id>"}

Topics:

  - poll:<id>  vote tallies, closure and resolution of a poll; open to anyone
  - user:<id>  notifications; only the authenticated owner may subscribe

Every frame the server sends is an Event envelope. Subscription requests
are acknowledged with "subscribed", "unsubscribed" or "error" events.

Handlers publish through Hub.Publish, which never blocks the request path.
*/
package realtime
