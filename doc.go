// Package rtagent is a client for speech-to-speech realtime model sessions.
//
// A Session orchestrates one conversation: it connects a RealtimeAgent over
// a Transport (websocket or WebRTC), reconciles the conversation history,
// dispatches tool calls, handoffs and approval requests, and runs output
// guardrails against the streaming transcript. Protocol activity is
// delivered as a stream of typed events on Session.Events.
package rtagent
