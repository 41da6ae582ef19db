package dcaauth

import "net/http"

// Doer sends an HTTP request. *http.Client satisfies it; tests plug in
// mock.Transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// EventPublisher is the part of the emitter the executor and managers emit
// through.
type EventPublisher interface {
	Emit(event string, payload any)
}
