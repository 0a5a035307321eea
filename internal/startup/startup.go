package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"photo-indexer/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	DataDir         string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	ThumbnailSize    int
	ThumbnailWorkers int
	IndexWorkers     int
	ScanBatchSize    int

	VipsEnabled     bool
	ExiftoolEnabled bool

	// KafkaBrokers is empty when the Kafka sink is disabled.
	KafkaBrokers []string
	KafkaTopic   string
}

// DefaultDataDir returns $XDG_DATA_HOME/photo-indexer, or ./data when
// XDG_DATA_HOME is unset.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "photo-indexer")
	}
	return "data"
}

// LoadConfig reads the environment, logs the resulting configuration and
// makes sure the data directory exists and is writable.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	section("CONFIGURATION")
	for _, row := range config.rows() {
		logging.Info("  %-20s %s", row[0]+":", row[1])
	}

	section("DATA DIRECTORY")
	logging.Info("  Path: %s", config.DataDir)
	if err := ensureDirectory(config.DataDir); err != nil {
		return nil, fmt.Errorf("data directory %s: %w", config.DataDir, err)
	}
	if err := testWriteAccess(config.DataDir); err != nil {
		return nil, fmt.Errorf("data directory %s is not writable: %w", config.DataDir, err)
	}
	logging.Info("  [OK] Writable")

	logging.Info("")
	logging.Info("  Optional components:")
	logging.Info("    libvips     %s", enabledString(config.VipsEnabled))
	logging.Info("    exiftool    %s", enabledString(config.ExiftoolEnabled))
	logging.Info("    kafka sink  %s", enabledString(len(config.KafkaBrokers) > 0))
	logging.Info("    metrics     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// rows renders c as environment variable / value pairs for the banner.
func (c *Config) rows() [][2]string {
	kafka := "(disabled)"
	if len(c.KafkaBrokers) > 0 {
		kafka = strings.Join(c.KafkaBrokers, ",") + " -> " + c.KafkaTopic
	}
	return [][2]string{
		{"DATA_DIR", c.DataDir},
		{"PORT", c.Port},
		{"METRICS_PORT", c.MetricsPort},
		{"METRICS_ENABLED", strconv.FormatBool(c.MetricsEnabled)},
		{"THUMBNAIL_SIZE", strconv.Itoa(c.ThumbnailSize)},
		{"THUMBNAIL_WORKERS", strconv.Itoa(c.ThumbnailWorkers)},
		{"INDEX_WORKERS", strconv.Itoa(c.IndexWorkers)},
		{"SCAN_BATCH_SIZE", strconv.Itoa(c.ScanBatchSize)},
		{"VIPS_ENABLED", strconv.FormatBool(c.VipsEnabled)},
		{"EXIFTOOL_ENABLED", strconv.FormatBool(c.ExiftoolEnabled)},
		{"KAFKA", kafka},
		{"LOG_STATIC_FILES", strconv.FormatBool(c.LogStaticFiles)},
		{"LOG_HEALTH_CHECKS", strconv.FormatBool(c.LogHealthChecks)},
		{"LOG_LEVEL", logging.GetLevel().String()},
	}
}

// section starts a titled block in the startup log.
func section(title string) {
	logging.Info("")
	logging.Info("%s", rule)
	logging.Info("%s", title)
	logging.Info("%s", rule)
}

var rule = strings.Repeat("-", 60)

// configFromEnv reads the environment without touching the filesystem.
func configFromEnv() (*Config, error) {
	dataDir, err := filepath.Abs(getEnv("DATA_DIR", DefaultDataDir()))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	return &Config{
		DataDir:          dataDir,
		Port:             getEnv("PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:   getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks:  getEnvBool("LOG_HEALTH_CHECKS", true),
		ThumbnailSize:    getEnvInt("THUMBNAIL_SIZE", 256),
		ThumbnailWorkers: getEnvInt("THUMBNAIL_WORKERS", runtime.NumCPU()),
		IndexWorkers:     getEnvInt("INDEX_WORKERS", runtime.NumCPU()),
		ScanBatchSize:    getEnvInt("SCAN_BATCH_SIZE", 20),
		VipsEnabled:      getEnvBool("VIPS_ENABLED", false),
		ExiftoolEnabled:  getEnvBool("EXIFTOOL_ENABLED", true),
		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "scan-progress"),
	}, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogLibraryInit logs how long opening the index took.
func LogLibraryInit(duration time.Duration) {
	section("LIBRARY")
	logging.Info("  [OK] Index, settings and thumbnail cache opened in %v", duration.Round(time.Millisecond))
}

// LogVipsInit reports which decoder thumbnails will use.
func LogVipsInit(requested, available bool) {
	switch {
	case !requested:
		logging.Debug("  Thumbnails decode with Go codecs (VIPS_ENABLED=false)")
	case available:
		logging.Info("  [OK] Thumbnails decode with libvips")
	default:
		logging.Warn("  libvips unavailable, thumbnails decode with Go codecs")
	}
}

// LogStartupScan logs the scan started because update_db_when_startup is set.
func LogStartupScan(token string) {
	section("STARTUP SCAN")
	logging.Info("  Scan %s indexing every watched folder", token)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the access log settings and, at debug level, every
// route grouped by its first path segment.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP ROUTES")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("Failed to walk routes: %v", err)
		}
		logging.Debug("  %d routes", len(routes))
		for _, g := range groupRoutes(routes) {
			logging.Debug("  [%s]", g.name)
			for _, r := range g.routes {
				logging.Debug("    %-6s %s", r.Method, r.Path)
			}
		}
	}

	logging.Info("  Access log: static files %s, health checks %s",
		onOff(logStaticFiles), onOff(logHealthChecks))
}

type routeGroup struct {
	name   string
	routes []RouteInfo
}

// groupRoutes buckets routes by getRouteGroup, sorted by group name.
func groupRoutes(routes []RouteInfo) []routeGroup {
	byName := make(map[string]int)
	var groups []routeGroup
	for _, r := range routes {
		name := getRouteGroup(r.Path)
		if name == "" {
			name = "root"
		}
		i, ok := byName[name]
		if !ok {
			i = len(groups)
			byName[name] = i
			groups = append(groups, routeGroup{name: name})
		}
		groups[i].routes = append(groups[i].routes, r)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].name < groups[j].name })
	return groups
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// getRouteGroup returns the first path segment, or "api/<resource>" for
// routes under /api.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if first == "api" && rest != "" {
		resource, _, _ := strings.Cut(rest, "/")
		return "api/" + resource
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(config ServerConfig) {
	section("READY")
	logging.Info("  Started in %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  API:      http://localhost:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:  http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("%s", rule)
}

// LogShutdownInitiated logs the signal that started shutdown.
func LogShutdownInitiated(signal string) {
	section("SHUTDOWN (" + signal + ")")
}

// LogShutdownStep logs a shutdown step about to run.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished shutdown step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs the end of shutdown.
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs and exits.
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
        __          __           _           __
   ___ / /  ___  / /____  ____ (_)__  ___/ /____ __ ___ ____
  / _ \/ _ \/ _ \/ __/ _ \/___// / _ \/ _  / -_) \ // -_) __/
 / .__/_//_/\___/\__/\___/    /_/_//_/\_,_/\__/_\_\ \__/_/
/_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  %s (commit %s, built %s)", Version, Commit, BuildTime)
}

func logSystemInfo() {
	section("SYSTEM")
	logging.Info("  %s %s/%s, %d CPUs, GOMAXPROCS %d",
		runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if host, err := os.Hostname(); err == nil {
		logging.Debug("  Host: %s", host)
	}
}

// ensureDirectory creates dir if it is missing and fails if path exists as
// something other than a directory.
func ensureDirectory(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logging.Debug("  Creating %s", dir)
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("Failed to remove %s: %v", name, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid positive integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
