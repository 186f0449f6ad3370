package conf

import "time"

type Bootstrap struct {
	Hostname string    `json:"hostname" yaml:"hostname"`
	PidFile  string    `json:"pidfile" yaml:"pidfile"`
	Logger   *Logger   `json:"logger" yaml:"logger"`
	Server   *Server   `json:"server" yaml:"server"`
	Cache    *Cache    `json:"cache" yaml:"cache"`
	Upstream *Upstream `json:"upstream" yaml:"upstream"`
}

type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"`
	Caller     bool   `json:"caller" yaml:"caller"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type Server struct {
	ClientPort int          `json:"client_port" yaml:"client_port"`
	AdminAddr  string       `json:"admin_addr" yaml:"admin_addr"`
	PProf      *ServerPProf `json:"pprof" yaml:"pprof"`
}

type ServerPProf struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type Upstream struct {
	ServerPort  int           `json:"server_port" yaml:"server_port"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

type Cache struct {
	// Capacity is the entry bound. 0 disables caching.
	Capacity int `json:"capacity" yaml:"capacity"`
	// MaxFileSize gates cacheable GET requests, in bytes.
	MaxFileSize int `json:"max_file_size" yaml:"max_file_size"`
	// Policy selects the replacement policy: fifo or lru.
	Policy string `json:"policy" yaml:"policy"`
}

// Default returns a Bootstrap carrying the stock settings; the CLI and an
// optional config file overlay it.
func Default() *Bootstrap {
	return &Bootstrap{
		Logger: &Logger{
			Level:      "info",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		},
		Server: &Server{
			PProf: &ServerPProf{},
		},
		Cache: &Cache{
			Capacity:    3,
			MaxFileSize: 65536,
			Policy:      "fifo",
		},
		Upstream: &Upstream{
			DialTimeout: 30 * time.Second,
		},
	}
}
