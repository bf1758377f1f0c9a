package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Binz120/OpenBullet2/internal/config"
	"github.com/Binz120/OpenBullet2/internal/domain"
	"github.com/Binz120/OpenBullet2/internal/support"
)

type cliOptions struct {
	ConfigFile   string
	WordlistFile string
	WordlistType string
	ProxyFile    string
	ProxyType    string
	ProxyMode    string
	Skip         int64
	Bots         int
	Verbose      bool
	SettingsFile string
	ShowVersion  bool
}

var errMissingFlag = errors.New("missing required flag")

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("openbullet", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.ConfigFile, "config", "", "Check configuration file to run (required)")
	fs.StringVar(&opts.WordlistFile, "wordlist", "", "Wordlist file, range:START:AMOUNT[:STEP[:pad]] or infinite (required)")
	fs.StringVar(&opts.WordlistType, "wltype", "Default", "Type of the wordlist (Default, Credentials, Emails, Numeric, URLs)")
	fs.StringVar(&opts.ProxyFile, "proxies", "", "Proxy file to be processed")
	fs.StringVar(&opts.ProxyType, "ptype", "", "Type of proxies loaded (http, socks4, socks4a, socks5)")
	fs.StringVar(&opts.ProxyMode, "pmode", "", "The proxy mode (On, Off, Default)")
	fs.Int64Var(&opts.Skip, "skip", 0, "Number of lines to skip in the wordlist")
	fs.IntVar(&opts.Bots, "bots", 0, "Number of concurrent bots; 0 uses the settings or the config default")
	fs.BoolVar(&opts.Verbose, "verbose", support.GetEnvBool("OB_VERBOSE", false), "Print fails and task errors")
	fs.StringVar(&opts.SettingsFile, "settings", support.GetEnv("OB_SETTINGS", config.DefaultSettingsFilePath), "Path to the settings file")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print the version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if opts.ShowVersion {
		return opts, nil
	}

	var missing []string
	if opts.ConfigFile == "" {
		missing = append(missing, "-config")
	}
	if opts.WordlistFile == "" {
		missing = append(missing, "-wordlist")
	}
	if len(missing) > 0 {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("%w: %s", errMissingFlag, strings.Join(missing, ", "))
	}
	if opts.Skip < 0 {
		return cliOptions{}, fmt.Errorf("-skip must not be negative")
	}
	if opts.Bots < 0 {
		return cliOptions{}, fmt.Errorf("-bots must not be negative")
	}

	return opts, nil
}

// resolveProxySettings merges the flags over the settings file.
func resolveProxySettings(opts cliOptions, cfg config.Config) (domain.ProxyType, domain.ProxyMode, error) {
	rawType := opts.ProxyType
	if rawType == "" {
		rawType = cfg.Proxies.DefaultType
	}
	proxyType, err := domain.ParseProxyType(rawType)
	if err != nil {
		return 0, 0, err
	}

	rawMode := opts.ProxyMode
	if rawMode == "" {
		rawMode = cfg.Job.ProxyMode
	}
	proxyMode, err := domain.ParseProxyMode(rawMode)
	if err != nil {
		return 0, 0, err
	}

	return proxyType, proxyMode, nil
}

func resolveBots(opts cliOptions, cfg config.Config) int {
	if opts.Bots > 0 {
		return opts.Bots
	}
	return int(cfg.Job.Bots)
}
