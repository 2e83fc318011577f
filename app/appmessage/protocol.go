package appmessage

// ProtocolVersion is the latest protocol version this package supports.
const ProtocolVersion uint32 = 70001

// MinAcceptableProtocolVersion is the lowest protocol version that a connected
// peer may support before the session is rejected during handshake.
const MinAcceptableProtocolVersion uint32 = 60002
