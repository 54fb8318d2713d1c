// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v2"
	flags "github.com/jessevdk/go-flags"

	v1 "github.com/signetapp/signet/api/v1"
)

const (
	defaultConfigFilename = "signetd.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "signetd.log"
	defaultDebugLevel     = "info"

	defaultScanBack     = 5000
	defaultPollInterval = 2 * time.Second
	defaultListLimit    = 50
	maxListLimit        = 1000
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("signetd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultHTTPSCert  = filepath.Join(defaultHomeDir, "https.cert")
	defaultHTTPSKey   = filepath.Join(defaultHomeDir, "https.key")
)

// config defines the configuration options for signetd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir          string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion      bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile       string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir          string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir           string        `long:"logdir" description:"Directory to log output."`
	DebugLevel       string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Listeners        []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 49374)"`
	HTTPSCert        string        `long:"httpscert" description:"File containing the https certificate file"`
	HTTPSKey         string        `long:"httpskey" description:"File containing the https certificate key"`
	RPCURL           string        `long:"rpcurl" description:"JSON-RPC endpoint of the ledger node"`
	ContractAddress  string        `long:"contractaddress" description:"Address of the registry contract to follow"`
	EventTopic       string        `long:"eventtopic" description:"Override the registration event topic hash"`
	HammingThreshold int           `long:"hammingthreshold" description:"Default verification distance cutoff"`
	StartHeight      uint64        `long:"startheight" description:"First block to scan when no checkpoint exists"`
	ScanBack         uint64        `long:"scanback" description:"Blocks to scan back from the tip when no checkpoint or start height exists"`
	PollInterval     time.Duration `long:"pollinterval" description:"Idle delay between ledger polls"`
	Version          string
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

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddresses returns a new slice with all the passed peer
// addresses normalized with the given default port, and all duplicates
// removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, defaultPort)
		}
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified
//     options
//  4. Parse CLI options and overwrite/add any specified options
//
// This func also initializes the logging infrastructure as well as
// configures it accordingly.
func loadConfig() (*config, []string, error) {
	cfg := config{
		HomeDir:          defaultHomeDir,
		ConfigFile:       defaultConfigFile,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		HTTPSCert:        defaultHTTPSCert,
		HTTPSKey:         defaultHTTPSKey,
		DebugLevel:       defaultDebugLevel,
		HammingThreshold: v1.DefaultHammingThreshold,
		ScanBack:         defaultScanBack,
		PollInterval:     defaultPollInterval,
		Version:          version(),
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s)\n", appName,
			version(), goVersion())
		os.Exit(0)
	}

	// Update the home directory if specified.  Since the home directory
	// is updated, other variables need to be updated to reflect the new
	// changes.
	if preCfg.HomeDir != defaultHomeDir {
		cfg.HomeDir = cleanAndExpandPath(preCfg.HomeDir)
		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir,
				defaultDataDirname)
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir,
				defaultLogDirname)
		}
		if preCfg.HTTPSCert == defaultHTTPSCert {
			cfg.HTTPSCert = filepath.Join(cfg.HomeDir, "https.cert")
		}
		if preCfg.HTTPSKey == defaultHTTPSKey {
			cfg.HTTPSKey = filepath.Join(cfg.HomeDir, "https.key")
		}
	} else if preCfg.ConfigFile != defaultConfigFile {
		cfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
		}
		return nil, nil, err
	}

	// Create the home directory if it doesn't already exist.
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, appName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.HTTPSCert = cleanAndExpandPath(cfg.HTTPSCert)
	cfg.HTTPSKey = cleanAndExpandPath(cfg.HTTPSKey)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", appName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("the rpcurl option must be set")
	}
	if cfg.ContractAddress == "" {
		return nil, nil, fmt.Errorf("the contractaddress option " +
			"must be set")
	}
	if cfg.HammingThreshold < 0 {
		return nil, nil, fmt.Errorf("hammingthreshold must not be " +
			"negative")
	}

	// Add the default listener if none were specified.  The default
	// listener is all addresses on the signetd port.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", v1.DefaultPort),
		}
	}
	cfg.Listeners = normalizeAddresses(cfg.Listeners, v1.DefaultPort)

	return &cfg, remainingArgs, nil
}
