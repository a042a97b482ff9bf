package config

// Config is the full daemon configuration.
//
// All durations are Go duration strings (e.g. "30s", "1m", "10m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Engine   EngineConfig   `json:"engine"`
	Dispatch DispatchConfig `json:"dispatch"`

	// Delivery channels. At least one must be configured; users whose
	// preferred channel is missing fall back to email.
	SMTP     *SMTPConfig     `json:"smtp,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig controls the periodic scan jobs.
//
// Defaults (when fields are omitted/zero):
//   - scan_interval: "1m"
//   - overdue_interval: "1m" (a coarser sweep, e.g. "24h", is fine)
//   - grace: "10m"
type EngineConfig struct {
	ScanInterval    string `json:"scan_interval,omitempty"`
	OverdueInterval string `json:"overdue_interval,omitempty"`

	// Grace is how late a reminder may still fire after its exact
	// trigger time (absorbs missed ticks).
	Grace string `json:"grace,omitempty"`
}

// DispatchConfig controls the outbound delivery sweep.
//
// Defaults (when fields are omitted/zero):
//   - interval: "30s"
//   - rate_per_sec: 3
//   - retry_max: 2
//   - retry_base: "500ms"
type DispatchConfig struct {
	Interval   string `json:"interval,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`

	// SkipRead leaves notifications the user already read undelivered.
	SkipRead bool `json:"skip_read,omitempty"`
}

type SMTPConfig struct {
	Addr     string `json:"addr"` // host:port
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	StartTLS bool   `json:"starttls,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
}
