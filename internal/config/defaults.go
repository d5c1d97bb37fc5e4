package config

const (
	defaultWorkspaceDir         = "/workspace"
	defaultVolumeDir            = "/runpod-volume"
	defaultEngineSubdir         = "ComfyUI"
	defaultEngineScript         = "main.py"
	defaultEngineInterpreter    = "python3"
	defaultEngineHost           = "127.0.0.1"
	defaultEnginePort           = 8188
	defaultEngineStartupTimeout = 60
	defaultEnginePollInterval   = 2
	defaultEngineRequestTimeout = 30
	defaultEngineLogTailLines   = 40
	defaultVolumeWaitTimeout    = 15
	defaultModelsPollInterval   = 1
	defaultModelsSettleDelay    = 2
	defaultJobMaxWait           = 300
	defaultJobPollInterval      = 5
	defaultStorageMode          = "auto"
	defaultStorageOutputDir     = "kiln/output"
	defaultPresignTimeout       = 60
	defaultAPIBind              = "127.0.0.1:8787"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 14
	defaultNotifyTimeout        = 10
)

// Default returns a Config populated with repository defaults. Paths mirror
// the standard container layout: an ephemeral workspace with the engine
// checkout and a network volume mounted for shared models.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			VolumeDir:    defaultVolumeDir,
		},
		Engine: Engine{
			Script:         defaultEngineScript,
			Interpreter:    defaultEngineInterpreter,
			Host:           defaultEngineHost,
			Port:           defaultEnginePort,
			StartupTimeout: defaultEngineStartupTimeout,
			PollInterval:   defaultEnginePollInterval,
			RequestTimeout: defaultEngineRequestTimeout,
			WarmModels:     true,
			LogTailLines:   defaultEngineLogTailLines,
		},
		Models: Models{
			VolumeWaitTimeout: defaultVolumeWaitTimeout,
			PollInterval:      defaultModelsPollInterval,
			SettleDelay:       defaultModelsSettleDelay,
		},
		Jobs: Jobs{
			MaxWait:      defaultJobMaxWait,
			PollInterval: defaultJobPollInterval,
		},
		Storage: Storage{
			Mode:           defaultStorageMode,
			OutputDir:      defaultStorageOutputDir,
			PresignTimeout: defaultPresignTimeout,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
	}
}
