package conf

import (
	"fmt"
	"strconv"

	"dario.cat/mergo"

	"github.com/nilandasd/httpproxy/contrib/config"
	"github.com/nilandasd/httpproxy/contrib/config/provider/file"
	"github.com/nilandasd/httpproxy/pkg/mapstruct"
)

// Usage is printed with every argument rejection.
const Usage = "Usage: httpproxy <client-port> <server-port> [-u] [-c files] [-m bytes] [-f config] [-v]"

// ParseArgs scans the command line into a Bootstrap. The two ports are taken
// in order of appearance and may be interleaved with flags. `-u` selects LRU
// replacement, `-c` the cache capacity, `-m` the cacheable size bound, `-f`
// an optional config file for the ambient settings, `-v` debug logging.
// CLI values win over file values, which win over defaults.
func ParseArgs(args []string) (*Bootstrap, error) {
	var (
		clientPort int
		serverPort int
		confFile   string
		verbose    bool
	)
	cacheCLI := map[string]any{}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-u":
			cacheCLI["policy"] = "lru"
		case "-c":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-c requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid cache capacity %q", args[i])
			}
			cacheCLI["capacity"] = n
		case "-m":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-m requires a value")
			}
			n, err := strconv.Atoi(args[i])
			if err != nil || n == 0 {
				return nil, fmt.Errorf("invalid max file size %q", args[i])
			}
			cacheCLI["max_file_size"] = n
		case "-f":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-f requires a value")
			}
			confFile = args[i]
		case "-v":
			verbose = true
		default:
			port := parsePort(arg)
			if port == 0 {
				return nil, fmt.Errorf("invalid argument %q", arg)
			}
			switch {
			case clientPort == 0:
				clientPort = port
			case serverPort == 0:
				serverPort = port
			default:
				return nil, fmt.Errorf("unexpected argument %q", arg)
			}
		}
	}

	if clientPort == 0 || serverPort == 0 {
		return nil, fmt.Errorf("both ports are required")
	}

	bc := Default()

	if confFile != "" {
		c := config.New[Bootstrap](config.WithSource(file.NewSource(confFile)))
		defer c.Close()

		fileBC := &Bootstrap{}
		if err := c.Scan(fileBC); err != nil {
			return nil, err
		}
		if err := mergo.Merge(bc, *fileBC, mergo.WithOverride); err != nil {
			return nil, err
		}
	}

	overlay := map[string]any{
		"server":   map[string]any{"client_port": clientPort},
		"upstream": map[string]any{"server_port": serverPort},
	}
	if len(cacheCLI) > 0 {
		overlay["cache"] = cacheCLI
	}
	if verbose {
		overlay["logger"] = map[string]any{"level": "debug"}
	}
	if err := mapstruct.Decode(overlay, bc); err != nil {
		return nil, err
	}

	if bc.Cache.Capacity < 0 {
		return nil, fmt.Errorf("cache capacity must not be negative")
	}
	if bc.Cache.MaxFileSize == 0 {
		return nil, fmt.Errorf("max file size must not be zero")
	}
	return bc, nil
}

// parsePort parses a 1-65535 TCP port, returning 0 on any malformation.
func parsePort(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return 0
	}
	return n
}
