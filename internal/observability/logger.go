package observability

import (
	"github.com/rs/zerolog/log"

	"github.com/perchlabs/buslink/internal/logging"
)

// InitLogger applies the runtime logging profile (BUSLINK_LOG_* env
// overrides included) and stamps every event with the process name.
// Call once from main before anything else logs.
func InitLogger(app string) {
	logging.ConfigureRuntime()
	log.Logger = log.Logger.With().Str("app", app).Logger()
}
