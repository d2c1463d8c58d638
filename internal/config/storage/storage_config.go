package storage

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type AutoSaveConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds int  `json:"intervalSeconds" yaml:"intervalSeconds"`
}

type BackupConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Path     string `json:"path" yaml:"path"`
	MaxFiles int    `json:"maxFiles" yaml:"maxFiles"`
}

// StorageConfig selects and configures the durable history backend.
// Paths may start with "~/".
type StorageConfig struct {
	Backend     string         `json:"backend" yaml:"backend"`
	HistoryPath string         `json:"historyPath" yaml:"historyPath"`
	SQLitePath  string         `json:"sqlitePath" yaml:"sqlitePath"`
	AutoSave    AutoSaveConfig `json:"autoSave" yaml:"autoSave"`
	Backup      BackupConfig   `json:"backup" yaml:"backup"`
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:     BackendFile,
		HistoryPath: "~/.chatrelay/data/conversation_history.json",
		SQLitePath:  "~/.chatrelay/data/conversation_history.db",
		AutoSave:    AutoSaveConfig{Enabled: true, IntervalSeconds: 30},
		Backup: BackupConfig{
			Enabled:  true,
			Path:     "~/.chatrelay/data/backups",
			MaxFiles: 10,
		},
	}
}
