package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const DefaultConfPath = "redis.conf"

// Engine names accepted by the engine property
const (
	EngineBolt   = "bolt"
	EnginePebble = "pebble"
)

// Properties holds global config properties
var Properties *ServerProperties

// ServerProperties defines global config properties
type ServerProperties struct {
	Bind        string `cfg:"bind"`
	Port        int    `cfg:"port"`
	MaxClients  int    `cfg:"maxclients"`
	UseGnet     bool   `cfg:"usegnet"`
	MetricsBind string `cfg:"metricsbind"`
	LogDir      string `cfg:"logdir"`

	Engine      string `cfg:"engine"`
	Dir         string `cfg:"dir"`
	DBFilename  string `cfg:"dbfilename"`
	OpenTimeout int    `cfg:"opentimeout"` // seconds to wait for the bolt file lock
}

// Defaults returns the properties used when a key is not configured
func Defaults() *ServerProperties {
	return &ServerProperties{
		Bind:        "0.0.0.0",
		Port:        6399,
		MaxClients:  1000,
		Engine:      EngineBolt,
		Dir:         ".",
		DBFilename:  "tabledis.db",
		OpenTimeout: 1,
	}
}

func init() {
	Properties = Defaults()
}

// DataPath returns the file (bolt) or directory (pebble) holding the data
func (p *ServerProperties) DataPath() string {
	return filepath.Join(p.Dir, p.DBFilename)
}

// LockTimeout returns OpenTimeout as a duration
func (p *ServerProperties) LockTimeout() time.Duration {
	return time.Duration(p.OpenTimeout) * time.Second
}

// Validate checks values that have no sane fallback
func (p *ServerProperties) Validate() error {
	switch p.Engine {
	case EngineBolt, EnginePebble:
	default:
		return fmt.Errorf("unknown engine %q, want %s or %s", p.Engine, EngineBolt, EnginePebble)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("illegal port %d", p.Port)
	}
	if p.DBFilename == "" {
		return fmt.Errorf("dbfilename is empty")
	}
	return nil
}

func parse(src io.Reader) (*ServerProperties, error) {
	config := Defaults()

	// read config file
	rawMap := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && line[0] == '#' {
			continue
		}
		pivot := strings.IndexAny(line, " ")
		if pivot > 0 && pivot < len(line)-1 { // separator found
			key := line[0:pivot]
			value := strings.Trim(line[pivot+1:], " ")
			rawMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for key, value := range rawMap {
		config.Set(key, value)
	}
	return config, nil
}

// Set assigns value to the property tagged key, unknown keys and malformed numbers are ignored.
// It reports whether a property was assigned.
func (p *ServerProperties) Set(key, value string) bool {
	t := reflect.TypeOf(p)
	v := reflect.ValueOf(p)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		name, ok := field.Tag.Lookup("cfg")
		if !ok {
			name = field.Name
		}
		if !strings.EqualFold(name, key) {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(value)
		case reflect.Int:
			intValue, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return false
			}
			fieldVal.SetInt(intValue)
		case reflect.Bool:
			fieldVal.SetBool(toBool(value))
		default:
			return false
		}
		return true
	}
	return false
}

// Keys lists every property name in declaration order
func Keys() []string {
	t := reflect.TypeOf(ServerProperties{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, ok := t.Field(i).Tag.Lookup("cfg")
		if !ok {
			name = t.Field(i).Name
		}
		keys = append(keys, name)
	}
	return keys
}

// Setup reads the config file and stores its properties into Properties.
// An empty filename falls back to redis.conf in the working directory, and to defaults when that is missing.
func Setup(configFilename string) error {
	if configFilename == "" {
		if !defaultConfigFileExists() {
			Properties = Defaults()
			return nil
		}
		configFilename = DefaultConfPath
	}
	file, err := os.Open(configFilename)
	if err != nil {
		return err
	}
	defer file.Close()
	props, err := parse(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", configFilename, err)
	}
	Properties = props
	return nil
}

func defaultConfigFileExists() bool {
	info, err := os.Stat(DefaultConfPath)
	return err == nil && !info.IsDir()
}

func toBool(s string) bool {
	ls := strings.ToLower(s)
	switch ls {
	case "true", "yes", "t", "y":
		return true
	default:
		return false
	}
}
