// Package devicemodel holds the simulated hardware state shared by the
// protocol adapters.
//
// Each model is the single source of truth for one emulated device. Adapters
// never cache device state: they read a snapshot when they need to encode a
// reply and apply mutations through the model's methods. Because several
// adapters may touch overlapping state concurrently, every model
// implementation must be safe for concurrent use; the in-memory
// implementations in this package guard all state with a mutex.
package devicemodel
