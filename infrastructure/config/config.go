package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	"github.com/featherchain/featherd/version"
)

const (
	defaultConfigFilename  = "featherd.conf"
	defaultLogLevel        = "info"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "featherd.log"
	defaultErrLogFilename  = "featherd_err.log"
	defaultMinConnections  = 8
	defaultBackPressure    = 10
	defaultMaxUserAgentLen = 256
)

var (
	// DefaultAppDir is the default home directory for featherd.
	DefaultAppDir = btcutil.AppDataDir("featherd", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
)

// Flags holds the command-line flags of featherd.
type Flags struct {
	ShowVersion    bool     `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile     string   `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir         string   `short:"b" long:"appdir" description:"Directory to store data"`
	LogLevel       string   `short:"d" long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	NoLogFiles     bool     `long:"nologfiles" description:"Disable logging to file"`
	Listeners      []string `long:"listen" description:"Add an interface/port to listen for connections"`
	DisableListen  bool     `long:"nolisten" description:"Disable listening for incoming connections"`
	AddPeers       []string `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	ConnectPeers   []string `long:"connect" description:"Connect only to the specified peers at startup"`
	MinConnections int      `long:"minpeers" description:"Minimum number of connected peers to maintain"`
	BackPressure   int      `long:"backpressure" description:"Capacity of the shared inbound message queue"`
	Proxy          string   `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string   `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string   `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	DisableDNSSeed bool     `long:"nodnsseed" description:"Disable DNS seeding for peers"`
	DNSSeed        string   `long:"dnsseed" description:"Override DNS seeds with specified hostname"`
	UserAgent      string   `long:"uacomment" description:"Comment to add to the user agent"`
	NetworkFlags
}

// Config holds the resolved configuration of featherd.
type Config struct {
	*Flags

	// UserAgentString is the full user agent advertised in version messages.
	UserAgentString string
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:     defaultConfigFile,
		AppDir:         DefaultAppDir,
		LogLevel:       defaultLogLevel,
		MinConnections: defaultMinConnections,
		BackPressure:   defaultBackPressure,
	}
}

// LogDir returns the directory log files are written into.
func (cfg *Config) LogDir() string {
	return filepath.Join(cfg.AppDir, cfg.NetParams().Name, defaultLogDirname)
}

// LogFile returns the path of the main log file.
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir(), defaultLogFilename)
}

// ErrLogFile returns the path of the error log file.
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir(), defaultErrLogFilename)
}

// DataDir returns the directory databases are stored in.
func (cfg *Config) DataDir() string {
	return filepath.Join(cfg.AppDir, cfg.NetParams().Name, "data")
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	cfgFlags := defaultFlags()
	parser := flags.NewParser(cfgFlags, flags.HelpFlag)
	remainingArgs, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if ok := errors.As(err, &flagsErr); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
		return nil, errors.Wrapf(err, "error parsing command line arguments: %s", err)
	}
	if len(remainingArgs) > 0 {
		return nil, errors.Errorf("unexpected arguments: %s", remainingArgs)
	}

	// Show the version and exit if the version flag was specified.
	if cfgFlags.ShowVersion {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file if it exists.
	if fileExists(cfgFlags.ConfigFile) {
		err = flags.NewIniParser(parser).ParseFile(cfgFlags.ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing config file %s", cfgFlags.ConfigFile)
		}
		// Command line options take precedence over the config file.
		_, err = parser.Parse()
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing command line arguments: %s", err)
		}
	}

	err = cfgFlags.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Flags: cfgFlags}

	if cfg.MinConnections < 0 {
		return nil, errors.Errorf("minpeers must not be negative: %d", cfg.MinConnections)
	}
	if cfg.BackPressure <= 0 {
		return nil, errors.Errorf("backpressure must be positive: %d", cfg.BackPressure)
	}

	// --addpeer and --connect are mutually exclusive and --connect implies
	// that peer discovery is off.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		return nil, errors.Errorf("--addpeer and --connect options can not be both used")
	}
	if len(cfg.ConnectPeers) > 0 {
		cfg.DisableDNSSeed = true
	}

	// Add the default listener if none were specified.
	if len(cfg.Listeners) == 0 && !cfg.DisableListen {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.NetParams().DefaultPort),
		}
	}
	if cfg.DisableListen {
		cfg.Listeners = nil
	}

	// Add the default port to addresses that are missing one.
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers, cfg.NetParams().DefaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers, cfg.NetParams().DefaultPort)

	cfg.UserAgentString = fmt.Sprintf("/featherd:%s/", version.Version())
	if cfg.UserAgent != "" {
		cfg.UserAgentString = fmt.Sprintf("%s(%s)/", strings.TrimSuffix(cfg.UserAgentString, "/"),
			cfg.UserAgent)
	}

	return cfg, nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
