package reference

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"motion-scorer/internal/apperr"
)

// Loader builds a fresh Library, typically by calling Load on the corpus root.
type Loader func() (*Library, error)

// Holder owns the process-wide Library. Requests read the current Library
// without locking; Reload builds a new one off to the side and swaps it in, so
// a request that already looked up its references keeps using them.
type Holder struct {
	current atomic.Pointer[Library]
	load    Loader
	mu      sync.Mutex
	log     *slog.Logger
}

// NewHolder loads the initial Library.
func NewHolder(load Loader, log *slog.Logger) (*Holder, error) {
	lib, err := load()
	if err != nil {
		return nil, err
	}
	h := &Holder{load: load, log: log}
	h.current.Store(lib)
	return h, nil
}

// Library returns the current Library.
func (h *Holder) Library() *Library {
	return h.current.Load()
}

// Lookup resolves label against the current Library.
func (h *Holder) Lookup(label string) (*Set, error) {
	lib := h.current.Load()
	if lib == nil {
		return nil, apperr.New(apperr.KindInternal, "reference library not loaded")
	}
	return lib.Lookup(label)
}

// Reload rebuilds the Library. On failure the previous Library stays active.
func (h *Holder) Reload() (*Library, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lib, err := h.load()
	if err != nil {
		h.log.Error("reference reload failed, keeping current library",
			slog.String("version", h.Library().Version()),
			slog.String("error", err.Error()))
		return nil, err
	}
	prev := h.current.Swap(lib)
	h.log.Info("reference library swapped",
		slog.String("previous_version", prev.Version()),
		slog.String("version", lib.Version()))
	return lib, nil
}
