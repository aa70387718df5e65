package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PLUME_TEST_MODE") == "" {
			_ = os.Setenv("PLUME_TEST_MODE", "1")
		}
	})
}
