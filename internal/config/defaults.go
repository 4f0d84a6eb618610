package config

const (
	defaultDataDir = "~/.local/share/scribe"
	defaultLogDir  = "~/.local/share/scribe/logs"

	defaultServerBind = "127.0.0.1:8316"

	defaultProviderBaseURL         = "https://api.meetbot.example.com/v1"
	defaultProviderRequestTimeout  = 15
	defaultProviderDownloadTimeout = 600
	defaultLinkExpirationMinutes   = 30

	defaultStorageRegion        = "us-east-1"
	defaultStorageKeyPrefix     = "recordings"
	defaultPresignExpireMinutes = 1440

	defaultDocsRequestTimeout = 30

	defaultNotifyRequestTimeout = 10

	defaultStepMaxAttempts       = 3
	defaultRetryBaseDelaySeconds = 2

	defaultPollIntervalSeconds   = 30
	defaultBotJoinedRetryMinutes = 10
	defaultBotJoinedCeilingHours = 3
	defaultRecordingRetryMinutes = 45
	defaultShutdownGraceSeconds  = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind: defaultServerBind,
		},
		Provider: Provider{
			BaseURL:               defaultProviderBaseURL,
			RequestTimeout:        defaultProviderRequestTimeout,
			DownloadTimeout:       defaultProviderDownloadTimeout,
			LinkExpirationMinutes: defaultLinkExpirationMinutes,
		},
		Storage: Storage{
			Region:               defaultStorageRegion,
			KeyPrefix:            defaultStorageKeyPrefix,
			PresignExpireMinutes: defaultPresignExpireMinutes,
		},
		Docs: Docs{
			RequestTimeout: defaultDocsRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Failure:        true,
			Recovery:       true,
		},
		Pipeline: Pipeline{
			StepMaxAttempts:       defaultStepMaxAttempts,
			RetryBaseDelaySeconds: defaultRetryBaseDelaySeconds,
		},
		Reconcile: Reconcile{
			PollIntervalSeconds:   defaultPollIntervalSeconds,
			BotJoinedRetryMinutes: defaultBotJoinedRetryMinutes,
			BotJoinedCeilingHours: defaultBotJoinedCeilingHours,
			RecordingRetryMinutes: defaultRecordingRetryMinutes,
			ShutdownGraceSeconds:  defaultShutdownGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
