package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OPSLEDGER_TEST_MODE") == "" {
			_ = os.Setenv("OPSLEDGER_TEST_MODE", "1")
		}
	})
}
