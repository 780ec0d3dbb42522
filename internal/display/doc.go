// Package display puts celebrations in front of people: a WebSocket hub for
// TV browsers, an optional kiosk terminal, and the HTTP surface of the agent.
//
// Presenter adapts celebration.Presenter onto any number of Hosts.
package display
