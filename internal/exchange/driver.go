package exchange

import (
	"fmt"
	"sync"
)

// Credentials - расшифрованные API ключи учётной записи биржи
type Credentials struct {
	APIKey    string
	APISecret string
}

// Driver создает клиента биржи из расшифрованных ключей.
// Wire-реализации (REST/WebSocket) регистрируются при импорте по
// образцу драйверов database/sql:
//
//	func init() { exchange.RegisterDriver("bittrex", New) }
type Driver func(creds Credentials) (Exchange, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver регистрирует конструктор клиента под именем биржи.
// Повторная регистрация того же имени - ошибка программирования.
func RegisterDriver(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("exchange: RegisterDriver driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("exchange: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = driver
}

// Connect создает клиента биржи через зарегистрированный драйвер
func Connect(name string, creds Credentials) (Exchange, error) {
	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: unknown driver %q (forgotten import?)", name)
	}
	return driver(creds)
}

// Drivers возвращает имена зарегистрированных драйверов
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
