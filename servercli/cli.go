package servercli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hdt3213/tabledis/config"
	"github.com/hdt3213/tabledis/database"
	"github.com/hdt3213/tabledis/gnet"
	"github.com/hdt3213/tabledis/lib/logger"
	RedisServer "github.com/hdt3213/tabledis/redis/server"
	"github.com/hdt3213/tabledis/store"
	"github.com/hdt3213/tabledis/tcp"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Banner is printed when the server starts
var Banner string

const envPrefix = "tabledis"

// NewRootCmd builds the command tree. Running it without a sub command starts the server.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "tabledis",
		Short: "tabledis is a redis protocol server keeping strings, sets, lists and sorted sets in transactional tables",
		Long: `tabledis is a redis protocol server keeping strings, sets, lists and sorted sets in transactional tables.

Properties are read from the redis.conf style file given by --config (or the CONFIG environment variable),
then overridden by TABLEDIS_<PROPERTY> environment variables, then by flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadProperties(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return StartServer()
		},
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "redis.conf style config file")
	for _, key := range config.Keys() {
		rootCmd.PersistentFlags().String(key, "", "overrides the "+key+" property")
	}
	rootCmd.AddCommand(serveCmd(), installCmd(), flushAllCmd(), exportCmd(), importCmd())
	return rootCmd
}

// Execute runs the command line
func Execute() error {
	return NewRootCmd().Execute()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Install the tables and serve redis clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return StartServer()
		},
	}
}

// loadProperties fills config.Properties from the config file, .env files, environment and flags
func loadProperties(cmd *cobra.Command, v *viper.Viper) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	configFilename := v.GetString("config")
	if configFilename == "" {
		configFilename = os.Getenv("CONFIG")
	}
	if err := config.Setup(configFilename); err != nil {
		return err
	}
	for _, key := range config.Keys() {
		value := v.GetString(key)
		if value == "" {
			continue
		}
		if !config.Properties.Set(key, value) {
			return fmt.Errorf("illegal value %q for %s", value, key)
		}
	}
	return config.Properties.Validate()
}

func setupLogger() error {
	if config.Properties.LogDir == "" {
		return nil
	}
	return logger.Setup(&logger.Settings{
		Path:       config.Properties.LogDir,
		Name:       "tabledis",
		Ext:        "log",
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})
}

// openStore opens the configured engine and installs every table
func openStore() (*store.Store, error) {
	s, err := store.Open(config.Properties)
	if err != nil {
		return nil, err
	}
	if err := s.Install(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("install tables: %w", err)
	}
	return s, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errorf("metrics server stopped: %v", err)
	}
}

// StartServer serves redis clients with config.Properties until a stop signal arrives
func StartServer() error {
	print(Banner)
	if err := setupLogger(); err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		logger.Errorf("start server failed: %v", err)
		return err
	}
	db := database.MakeDispatcher(s)
	if config.Properties.MetricsBind != "" {
		go serveMetrics(config.Properties.MetricsBind)
	}

	addr := fmt.Sprintf("%s:%d", config.Properties.Bind, config.Properties.Port)
	if config.Properties.UseGnet {
		server := gnet.NewGnetServer(db)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		go func() {
			<-ctx.Done()
			logger.Info("get exit signal")
			if err := server.Close(); err != nil {
				logger.Errorf("stop gnet: %v", err)
			}
		}()
		if err := server.Run(addr); err != nil {
			logger.Errorf("gnet stopped: %v", err)
			if ctx.Err() == nil {
				db.Close()
			}
			return err
		}
		return nil
	}
	err = tcp.ListenAndServeWithSignal(&tcp.Config{
		Address:    addr,
		MaxConnect: uint32(config.Properties.MaxClients),
	}, RedisServer.MakeHandler(db))
	if err != nil {
		logger.Error(err)
	}
	return err
}
