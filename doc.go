// Package lowlatency plays a live H.264 elementary stream from an RTSP/RTP
// network camera with minimum end-to-end latency.
//
// The package is the orchestration core only: it owns the processing graph
// (source, depacketizer, decoder, instrumentation probe, renderer), the
// four-state playback lifecycle, the event bus carrying faults and telemetry
// from streaming threads to the owning application, the dynamic link
// completion that follows RTSP negotiation, and the synchronous surface
// handoff that supplies the renderer a native drawable before its first
// frame. Windowing, widgets and argument parsing are external collaborators
// reached through the Player and Sink interfaces.
package lowlatency
