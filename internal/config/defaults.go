package config

const (
	defaultConfigPath               = "~/.config/shelver/config.toml"
	defaultLibraryDir               = "~/library"
	defaultStateDir                 = "~/.local/share/shelver"
	defaultLogDir                   = "~/.local/share/shelver/logs"
	defaultQuietWindowMillis        = 3000
	defaultMinSizeBytes             = 1
	defaultReconcileIntervalSeconds = 300
	defaultRegistrationCapacity     = 100
	defaultClassificationCapacity   = 50
	defaultRegistrationWorkers      = 1
	defaultClassificationWorkers    = 2
	defaultOrganizeWorkers          = 1
	defaultFairnessInterval         = 4
	defaultShutdownGraceSeconds     = 30
	defaultPollIntervalSeconds      = 2
	defaultClassifierProvider       = "keywords"
	defaultAutoThreshold            = 0.85
	defaultSuggestThreshold         = 0.50
	defaultBatchSize                = 10
	defaultBatchParallelism         = 4
	defaultClassifierTimeoutSeconds = 60
	defaultUnavailableRetrySeconds  = 60
	defaultLLMBaseURL               = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                 = "google/gemini-3-flash-preview"
	defaultLLMReferer               = "https://github.com/shelver/shelver"
	defaultLLMTitle                 = "Shelver Classifier"
	defaultLLMTimeoutSeconds        = 60
	defaultPathTemplate             = "{category}/{filename}"
	defaultCategoryCase             = "preserve"
	defaultMoveTimeoutSeconds       = 600
	defaultMaxRetries               = 3
	defaultRetryBaseDelaySeconds    = 5
	defaultRetryMaxDelaySeconds     = 300
	defaultNotifyRequestTimeout     = 10
	defaultNotifyBufferSize         = 64
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

var defaultExclude = []string{
	"**/.*",
	"**/*.part",
	"**/*.tmp",
	"**/*.crdownload",
}

// Default returns a Config populated with repository defaults. The organizer
// conflict policy and watch roots are intentionally left empty.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Watch: Watch{
			Recursive:                true,
			QuietWindowMillis:        defaultQuietWindowMillis,
			MinSizeBytes:             defaultMinSizeBytes,
			Exclude:                  append([]string(nil), defaultExclude...),
			ReconcileIntervalSeconds: defaultReconcileIntervalSeconds,
		},
		Queue: Queue{
			RegistrationCapacity:   defaultRegistrationCapacity,
			ClassificationCapacity: defaultClassificationCapacity,
			RegistrationWorkers:    defaultRegistrationWorkers,
			ClassificationWorkers:  defaultClassificationWorkers,
			OrganizeWorkers:        defaultOrganizeWorkers,
			FairnessInterval:       defaultFairnessInterval,
			ShutdownGraceSeconds:   defaultShutdownGraceSeconds,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
		},
		Classifier: Classifier{
			Provider:                defaultClassifierProvider,
			AutoThreshold:           defaultAutoThreshold,
			SuggestThreshold:        defaultSuggestThreshold,
			BatchSize:               defaultBatchSize,
			BatchParallelism:        defaultBatchParallelism,
			TimeoutSeconds:          defaultClassifierTimeoutSeconds,
			UnavailableRetrySeconds: defaultUnavailableRetrySeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Organizer: Organizer{
			PathTemplate:       defaultPathTemplate,
			CategoryCase:       defaultCategoryCase,
			MoveTimeoutSeconds: defaultMoveTimeoutSeconds,
		},
		Retry: Retry{
			MaxRetries:       defaultMaxRetries,
			BaseDelaySeconds: defaultRetryBaseDelaySeconds,
			MaxDelaySeconds:  defaultRetryMaxDelaySeconds,
		},
		Notifications: Notifications{
			RequestTimeout:       defaultNotifyRequestTimeout,
			BufferSize:           defaultNotifyBufferSize,
			Discovered:           false,
			Classified:           false,
			ReadyForConfirmation: true,
			Moved:                true,
			Failed:               true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
