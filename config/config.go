package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/govindnetworks/siodb/errors"
	"github.com/govindnetworks/siodb/util"
)

// Instance configuration. Options come from the instance INI file; every
// option is validated at load time so the engine never sees an invalid value.

const (
	MinPortNumber = 1
	MaxPortNumber = 65535

	DefaultIPv4Port      = 50000
	DefaultIPv6Port      = 0
	DefaultIOMgrIPv4Port = 50001
	DefaultIOMgrIPv6Port = 0

	DefaultAdminConnectionListenerBacklog = 10
	MaxAdminConnectionListenerBacklog     = 128
	DefaultMaxAdminConnections            = 10
	MaxMaxAdminConnections                = 4096
	DefaultUserConnectionListenerBacklog  = 10
	MaxUserConnectionListenerBacklog      = 32768
	DefaultMaxUserConnections             = 100
	MaxMaxUserConnections                 = 32768

	DefaultIOMgrWorkerThreadNumber = 2
	DefaultIOMgrWriterThreadNumber = 2

	DefaultBlockCacheCapacity    = 103
	MinBlockCacheCapacity        = 50
	DefaultUserCacheCapacity     = 100
	MinUserCacheCapacity         = 2
	DefaultDatabaseCacheCapacity = 100
	MinDatabaseCacheCapacity     = 2
	DefaultTableCacheCapacity    = 100
	MinTableCacheCapacity        = 2

	DefaultCipherID = "aes128"

	instanceConfigDir = "/etc/siodb/instances"
)

const (
	bytesInKB = int64(1) << 10
	bytesInMB = int64(1) << 20
	bytesInGB = int64(1) << 30

	secondsInMinute = int64(60)
	secondsInHour   = secondsInMinute * 60
	secondsInDay    = secondsInHour * 24
	secondsInWeek   = secondsInDay * 7

	defaultMaxLogFileSize           = 10 * bytesInMB
	maxMaxLogFileSize               = 10 * bytesInGB
	defaultMaxLogFiles              = uint64(10)
	defaultLogFileExpirationTimeout = 14 * secondsInDay
	maxLogFileExpirationTimeout     = 520 * secondsInWeek
	defaultLogSeverity              = "info"
)

var logSeverityNames = []string{"trace", "debug", "info", "warning", "error", "fatal"}

type GeneralOptions struct {
	Name                           string
	IPv4Port                       int
	IPv6Port                       int
	DataDir                        string
	AdminConnectionListenerBacklog int
	MaxAdminConnections            int
	UserConnectionListenerBacklog  int
	MaxUserConnections             int
}

type LogChannelType int

const (
	LogChannelConsole LogChannelType = iota
	LogChannelFile
)

type LogChannelOptions struct {
	Name                     string
	Type                     LogChannelType
	Destination              string
	MaxLogFileSize           int64
	MaxFiles                 uint64
	LogFileExpirationTimeout int64
	Severity                 string
}

type IOManagerOptions struct {
	IPv4Port              int
	IPv6Port              int
	WorkerThreadNumber    int
	WriterThreadNumber    int
	BlockCacheCapacity    int
	UserCacheCapacity     int
	DatabaseCacheCapacity int
	TableCacheCapacity    int
}

type EncryptionOptions struct {
	DefaultCipherID  string
	SystemDbCipherID string
}

type ClientOptions struct {
	EnableEncryption    bool
	TLSCertificate      string
	TLSCertificateChain string
	TLSPrivateKey       string
}

type InstanceOptions struct {
	General     GeneralOptions
	LogChannels []LogChannelOptions
	IOManager   IOManagerOptions
	Encryption  EncryptionOptions
	Client      ClientOptions
}

func invalidOption(format string, args ...interface{}) error {
	return errors.New(errors.CodeInvalidConfigurationOption, format, args...)
}

// ComposeInstanceConfigFilePath returns the config file path of an instance.
func ComposeInstanceConfigFilePath(instanceName string) string {
	return util.ConstructPath(instanceConfigDir, instanceName, "config")
}

// LoadInstanceOptions loads and validates the configuration of an instance.
func LoadInstanceOptions(instanceName string) (*InstanceOptions, error) {
	options, err := Load(ComposeInstanceConfigFilePath(instanceName))
	if err != nil {
		return nil, err
	}
	options.General.Name = instanceName
	return options, nil
}

// Load reads an instance configuration file and validates every option.
func Load(path string) (*InstanceOptions, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, invalidOption("cannot read configuration file '%s': %v", path, err)
	}
	// The INI codec files section-less keys under the DEFAULT section;
	// re-expose them under their plain names.
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, "default.") {
			v.Set(strings.TrimPrefix(key, "default."), v.Get(key))
		}
	}
	return loadFromViper(v)
}

func loadFromViper(v *viper.Viper) (*InstanceOptions, error) {
	options := &InstanceOptions{}

	// General options

	v.SetDefault("ipv4_port", DefaultIPv4Port)
	options.General.IPv4Port = v.GetInt("ipv4_port")
	if options.General.IPv4Port != 0 &&
		(options.General.IPv4Port < MinPortNumber || options.General.IPv4Port > MaxPortNumber) {
		return nil, invalidOption("invalid IPv4 server port number %d", options.General.IPv4Port)
	}

	v.SetDefault("ipv6_port", DefaultIPv6Port)
	options.General.IPv6Port = v.GetInt("ipv6_port")
	if options.General.IPv6Port != 0 &&
		(options.General.IPv6Port < MinPortNumber || options.General.IPv6Port > MaxPortNumber) {
		return nil, invalidOption("invalid IPv6 server port number %d", options.General.IPv6Port)
	}

	if options.General.IPv4Port == 0 && options.General.IPv6Port == 0 {
		return nil, invalidOption("both IPv4 and IPv6 are disabled")
	}

	options.General.DataDir = util.TrimTrailingSlashes(strings.TrimSpace(v.GetString("data_dir")))
	if options.General.DataDir == "" {
		return nil, invalidOption("data directory not specified or empty")
	}

	v.SetDefault("admin_connection_listener_backlog", DefaultAdminConnectionListenerBacklog)
	options.General.AdminConnectionListenerBacklog = v.GetInt("admin_connection_listener_backlog")
	if options.General.AdminConnectionListenerBacklog < 1 ||
		options.General.AdminConnectionListenerBacklog > MaxAdminConnectionListenerBacklog {
		return nil, invalidOption("admin connection listener backlog value is out of range")
	}

	v.SetDefault("max_admin_connections", DefaultMaxAdminConnections)
	options.General.MaxAdminConnections = v.GetInt("max_admin_connections")
	if options.General.MaxAdminConnections < 1 ||
		options.General.MaxAdminConnections > MaxMaxAdminConnections {
		return nil, invalidOption("max. number of admin connections is out of range")
	}

	v.SetDefault("user_connection_listener_backlog", DefaultUserConnectionListenerBacklog)
	options.General.UserConnectionListenerBacklog = v.GetInt("user_connection_listener_backlog")
	if options.General.UserConnectionListenerBacklog < 1 ||
		options.General.UserConnectionListenerBacklog > MaxUserConnectionListenerBacklog {
		return nil, invalidOption("user connection listener backlog value is out of range")
	}

	v.SetDefault("max_user_connections", DefaultMaxUserConnections)
	options.General.MaxUserConnections = v.GetInt("max_user_connections")
	if options.General.MaxUserConnections < 1 ||
		options.General.MaxUserConnections > MaxMaxUserConnections {
		return nil, invalidOption("max. number of user connections is out of range")
	}

	// Log options

	logChannels, err := loadLogChannels(v)
	if err != nil {
		return nil, err
	}
	options.LogChannels = logChannels

	// IO manager options

	v.SetDefault("iomgr.worker_thread_number", DefaultIOMgrWorkerThreadNumber)
	options.IOManager.WorkerThreadNumber = v.GetInt("iomgr.worker_thread_number")
	if options.IOManager.WorkerThreadNumber < 1 {
		return nil, invalidOption("number of IO manager worker threads is out of range")
	}

	v.SetDefault("iomgr.writer_thread_number", DefaultIOMgrWriterThreadNumber)
	options.IOManager.WriterThreadNumber = v.GetInt("iomgr.writer_thread_number")
	if options.IOManager.WriterThreadNumber < 1 {
		return nil, invalidOption("number of IO manager writer threads is out of range")
	}

	v.SetDefault("iomgr.ipv4_port", DefaultIOMgrIPv4Port)
	options.IOManager.IPv4Port = v.GetInt("iomgr.ipv4_port")
	if options.IOManager.IPv4Port != 0 &&
		(options.IOManager.IPv4Port < MinPortNumber || options.IOManager.IPv4Port > MaxPortNumber) {
		return nil, invalidOption("invalid IO manager IPv4 port number %d", options.IOManager.IPv4Port)
	}
	if options.IOManager.IPv4Port != 0 && options.IOManager.IPv4Port == options.General.IPv4Port {
		return nil, invalidOption("IO manager and database use the same IPv4 port number %d",
			options.IOManager.IPv4Port)
	}

	v.SetDefault("iomgr.ipv6_port", DefaultIOMgrIPv6Port)
	options.IOManager.IPv6Port = v.GetInt("iomgr.ipv6_port")
	if options.IOManager.IPv6Port != 0 &&
		(options.IOManager.IPv6Port < MinPortNumber || options.IOManager.IPv6Port > MaxPortNumber) {
		return nil, invalidOption("invalid IO manager IPv6 port number %d", options.IOManager.IPv6Port)
	}
	if options.IOManager.IPv6Port != 0 && options.IOManager.IPv6Port == options.General.IPv6Port {
		return nil, invalidOption("IO manager and database use the same IPv6 port number %d",
			options.IOManager.IPv6Port)
	}

	if options.IOManager.IPv4Port == 0 && options.IOManager.IPv6Port == 0 {
		return nil, invalidOption("both IPv4 and IPv6 are disabled for IO manager")
	}

	v.SetDefault("iomgr.block_cache_capacity", DefaultBlockCacheCapacity)
	options.IOManager.BlockCacheCapacity = v.GetInt("iomgr.block_cache_capacity")
	if options.IOManager.BlockCacheCapacity < MinBlockCacheCapacity {
		return nil, invalidOption("IO manager block cache capacity is too small")
	}

	v.SetDefault("iomgr.user_cache_capacity", DefaultUserCacheCapacity)
	options.IOManager.UserCacheCapacity = v.GetInt("iomgr.user_cache_capacity")
	if options.IOManager.UserCacheCapacity < MinUserCacheCapacity {
		return nil, invalidOption("IO manager user cache capacity is too small")
	}

	v.SetDefault("iomgr.database_cache_capacity", DefaultDatabaseCacheCapacity)
	options.IOManager.DatabaseCacheCapacity = v.GetInt("iomgr.database_cache_capacity")
	if options.IOManager.DatabaseCacheCapacity < MinDatabaseCacheCapacity {
		return nil, invalidOption("IO manager database cache capacity is too small")
	}

	v.SetDefault("iomgr.table_cache_capacity", DefaultTableCacheCapacity)
	options.IOManager.TableCacheCapacity = v.GetInt("iomgr.table_cache_capacity")
	if options.IOManager.TableCacheCapacity < MinTableCacheCapacity {
		return nil, invalidOption("IO manager table cache capacity is too small")
	}

	// Encryption options

	v.SetDefault("encryption.default_cipher_id", DefaultCipherID)
	options.Encryption.DefaultCipherID = strings.TrimSpace(v.GetString("encryption.default_cipher_id"))
	v.SetDefault("encryption.system_db_cipher_id", options.Encryption.DefaultCipherID)
	options.Encryption.SystemDbCipherID = strings.TrimSpace(v.GetString("encryption.system_db_cipher_id"))

	// Client options

	enableEncryption, err := parseBoolOption(v.GetString("client.enable_encryption"), false)
	if err != nil {
		return nil, invalidOption("invalid value of client.enable_encryption: %v", err)
	}
	options.Client.EnableEncryption = enableEncryption

	if options.Client.EnableEncryption {
		options.Client.TLSCertificate = strings.TrimSpace(v.GetString("client.tls_certificate"))
		options.Client.TLSCertificateChain = strings.TrimSpace(v.GetString("client.tls_certificate_chain"))
		options.Client.TLSPrivateKey = strings.TrimSpace(v.GetString("client.tls_private_key"))
		if options.Client.TLSCertificate == "" && options.Client.TLSCertificateChain == "" {
			return nil, invalidOption(
				"client certificate or certificate chain must be set to create a TLS connection")
		}
		if options.Client.TLSPrivateKey == "" {
			return nil, invalidOption("client TLS private key is empty")
		}
	}

	return options, nil
}

func loadLogChannels(v *viper.Viper) ([]LogChannelOptions, error) {
	value := strings.TrimSpace(v.GetString("log_channels"))
	if value == "" {
		return nil, invalidOption("no log channels defined")
	}

	var names []string
	known := make(map[string]struct{})
	for _, raw := range strings.Split(value, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, invalidOption("empty log channel name detected")
		}
		if _, ok := known[name]; ok {
			return nil, invalidOption("duplicate log channel name %s", name)
		}
		known[name] = struct{}{}
		names = append(names, name)
	}

	channels := make([]LogChannelOptions, 0, len(names))
	for _, name := range names {
		prefix := "log." + name + "."
		channel := LogChannelOptions{Name: name}

		channelType := v.GetString(prefix + "type")
		switch channelType {
		case "console":
			channel.Type = LogChannelConsole
		case "file":
			channel.Type = LogChannelFile
		case "":
			return nil, invalidOption("type not defined for the log channel %s", name)
		default:
			return nil, invalidOption(
				"unsupported channel type '%s' specified for the log channel %s", channelType, name)
		}

		channel.Destination = strings.TrimSpace(v.GetString(prefix + "destination"))
		if channel.Destination == "" {
			return nil, invalidOption("destination not defined for the log channel %s", name)
		}

		maxFileSize, err := parseSizeOption(
			v.GetString(prefix+"max_file_size"), defaultMaxLogFileSize, maxMaxLogFileSize)
		if err != nil {
			return nil, invalidOption(
				"invalid value of max. file size for the log channel %s: %v", name, err)
		}
		channel.MaxLogFileSize = maxFileSize

		maxFilesStr := strings.TrimSpace(v.GetString(prefix + "max_files"))
		if maxFilesStr == "" {
			channel.MaxFiles = defaultMaxLogFiles
		} else {
			maxFiles, err := strconv.ParseUint(maxFilesStr, 10, 64)
			if err != nil || maxFiles == 0 {
				return nil, invalidOption(
					"invalid value of max. number of log files for the log channel %s", name)
			}
			channel.MaxFiles = maxFiles
		}

		expiration, err := parseTimeOption(
			v.GetString(prefix+"log_file_expiration_timeout"),
			defaultLogFileExpirationTimeout, maxLogFileExpirationTimeout)
		if err != nil {
			return nil, invalidOption(
				"invalid value of expiration time for the log channel %s: %v", name, err)
		}
		channel.LogFileExpirationTimeout = expiration

		severity := strings.ToLower(strings.TrimSpace(v.GetString(prefix + "severity")))
		if severity == "" {
			severity = defaultLogSeverity
		}
		found := false
		for _, known := range logSeverityNames {
			if severity == known {
				found = true
				break
			}
		}
		if !found {
			return nil, invalidOption("invalid log severity level for the log channel %s", name)
		}
		channel.Severity = severity

		channels = append(channels, channel)
	}
	return channels, nil
}

// parseBoolOption accepts yes/no/true/false, case-insensitively.
func parseBoolOption(value string, defaultValue bool) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue, nil
	}
	switch strings.ToLower(value) {
	case "true", "yes":
		return true, nil
	case "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized boolean value '%s'", value)
	}
}

// parseSizeOption parses a byte size with an optional k/m/g suffix; bare
// numbers mean megabytes.
func parseSizeOption(value string, defaultValue, maxValue int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue, nil
	}
	multiplier := int64(0)
	if len(value) > 1 {
		switch value[len(value)-1] {
		case 'k', 'K':
			multiplier = bytesInKB
		case 'm', 'M':
			multiplier = bytesInMB
		case 'g', 'G':
			multiplier = bytesInGB
		}
		if multiplier > 0 {
			value = value[:len(value)-1]
		}
	}
	if multiplier == 0 {
		multiplier = bytesInMB
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("value is zero")
	}
	if n > maxValue/multiplier {
		return 0, fmt.Errorf("value is too big")
	}
	return n * multiplier, nil
}

// parseTimeOption parses a duration in seconds with an optional s/m/h/d/w
// suffix; bare numbers mean days.
func parseTimeOption(value string, defaultValue, maxValue int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue, nil
	}
	multiplier := int64(0)
	if len(value) > 1 {
		switch value[len(value)-1] {
		case 's', 'S':
			multiplier = 1
		case 'm', 'M':
			multiplier = secondsInMinute
		case 'h', 'H':
			multiplier = secondsInHour
		case 'd', 'D':
			multiplier = secondsInDay
		case 'w', 'W':
			multiplier = secondsInWeek
		}
		if multiplier > 0 {
			value = value[:len(value)-1]
		}
	}
	if multiplier == 0 {
		multiplier = secondsInDay
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if n > maxValue/multiplier {
		return 0, fmt.Errorf("value is too big")
	}
	return n * multiplier, nil
}
