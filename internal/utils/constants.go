package utils

// EmptyString represents a reusable empty string constant.
const EmptyString = ""

// Names of files and directories recap reads or writes inside a repository.
const (
	// RulesFileName is the name of the exclusion rule file in the repository root.
	RulesFileName = ".recapignore"
	// GitIgnoreFileName is the name of the Git ignore file.
	GitIgnoreFileName = ".gitignore"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"
	// ConfigFileName is the name of the local configuration file.
	ConfigFileName = ".recap.yaml"
	// GlobalConfigDirectoryName is the directory under the user's home holding the global configuration.
	GlobalConfigDirectoryName = ".recap"
	// GlobalConfigFileName is the name of the global configuration file.
	GlobalConfigFileName = "config.yaml"
	// StateDirectoryName holds the summary cache inside the repository.
	StateDirectoryName = ".recap"
	// DefaultDocumentName is the document recap maintains when none is configured.
	DefaultDocumentName = "README.md"
)

const (
	// LoggerInitializationFailedMessageFormat reports a logger construction failure.
	LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"
	// ApplicationExecutionFailedMessage prefixes fatal application errors.
	ApplicationExecutionFailedMessage = "application execution failed"
)
