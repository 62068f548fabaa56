package config

const (
	defaultStateDir             = "~/.local/share/mergedesk"
	defaultLogDir               = "~/.local/share/mergedesk/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultSessionIdleMinutes   = 30
	defaultBackendTimeout       = 30
	defaultRecordURLTemplate    = "/lightning/r/%s/view"
	defaultPageSize             = 12
	defaultSearchDebounceMS     = 300
	defaultPollIntervalMS       = 2000
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// PageSizes lists the page sizes the browser accepts.
var PageSizes = []int{12, 24, 48}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:           defaultStateDir,
			LogDir:             defaultLogDir,
			APIBind:            defaultAPIBind,
			SessionIdleMinutes: defaultSessionIdleMinutes,
		},
		Backend: Backend{
			RequestTimeout:    defaultBackendTimeout,
			RecordURLTemplate: defaultRecordURLTemplate,
		},
		Browser: Browser{
			PageSize:         defaultPageSize,
			SearchDebounceMS: defaultSearchDebounceMS,
		},
		Scan: Scan{
			PollIntervalMS: defaultPollIntervalMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Scans:          true,
			Merges:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// ValidPageSize reports whether size is one of PageSizes.
func ValidPageSize(size int) bool {
	for _, allowed := range PageSizes {
		if size == allowed {
			return true
		}
	}
	return false
}
