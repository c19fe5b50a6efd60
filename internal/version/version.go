package version

import "fmt"

// Service — имя сервиса в логах, health и User-Agent.
const Service = "storefront"

// Заполняются через -ldflags "-X github.com/newmedica/storefront/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Version возвращает версию сборки.
func Version() string { return version }

// String — строка для стартового лога.
func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, version, commit, date)
}

// UserAgent — значение заголовка User-Agent для запросов к backend и платёжному прокси.
func UserAgent() string {
	return Service + "/" + version
}
