package courier

import "github.com/meigma/courier/internal/transport"

// Transport performs the HTTP exchanges behind every transfer. Supply one
// with WithTransport to run a client against a test double.
type Transport = transport.Transport

// Sink receives downloaded bytes from a Transport.
type Sink = transport.Sink

// TransportOutcome describes what a download request achieved.
type TransportOutcome = transport.Outcome
