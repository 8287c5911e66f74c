package exchange

import (
	"errors"
	"sync"
)

// ErrExchangeNotFound возвращается при обращении к незарегистрированной бирже
var ErrExchangeNotFound = errors.New("exchange not found")

// Registry - потокобезопасный реестр подключенных бирж
type Registry struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	return &Registry{exchanges: make(map[string]Exchange)}
}

// Add регистрирует биржу под её именем
func (r *Registry) Add(exch Exchange) {
	r.mu.Lock()
	r.exchanges[exch.GetName()] = exch
	r.mu.Unlock()
}

// Get возвращает биржу по имени
func (r *Registry) Get(name string) (Exchange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exch, ok := r.exchanges[name]
	if !ok {
		return nil, ErrExchangeNotFound
	}
	return exch, nil
}

// Names возвращает имена всех зарегистрированных бирж
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exchanges))
	for name := range r.exchanges {
		names = append(names, name)
	}
	return names
}
