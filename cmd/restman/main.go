package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/restman-dev/restman/internal/config"
	"github.com/restman-dev/restman/internal/history"
	"github.com/restman-dev/restman/internal/httpclient"
	"github.com/restman-dev/restman/internal/pipeline"
	"github.com/restman-dev/restman/internal/postman"
	"github.com/restman-dev/restman/internal/reqdef"
	"github.com/restman-dev/restman/internal/scripts"
	"github.com/restman-dev/restman/internal/telemetry"
	"github.com/restman-dev/restman/internal/vars"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		filePath        string
		collectionPath  string
		environmentPath string
		envFile         string
		requestName     string
		listRequests    bool
		timeout         time.Duration
		scriptTimeout   time.Duration
		insecure        bool
		follow          bool
		forceHTTP2      bool
		proxyURL        string
		noHistory       bool
		noPersist       bool
		showVersion     bool
		otelEndpoint    string
		otelInsecure    bool
		otelService     string
	)

	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	otelEndpoint = telemetryCfg.Endpoint
	otelInsecure = telemetryCfg.Insecure
	otelService = telemetryCfg.ServiceName

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}

	extraVars := map[string]string{}

	flag.StringVar(&filePath, "file", "", "Path to a restman request file (YAML)")
	flag.StringVar(&collectionPath, "collection", "", "Path to a Postman collection export (v2.x JSON)")
	flag.StringVar(&environmentPath, "environment", "", "Path to a Postman environment export")
	flag.StringVar(&envFile, "env-file", "", "Path to a dotenv file loaded into the environment scope")
	flag.StringVar(&requestName, "request", "", "Name of the request to execute")
	flag.BoolVar(&listRequests, "list", false, "List requests and exit")
	flag.DurationVar(&timeout, "timeout", settings.HTTPTimeout.Std(), "Request timeout")
	flag.DurationVar(&scriptTimeout, "script-timeout", settings.ScriptTimeout.Std(), "Per-script execution timeout")
	flag.BoolVar(&insecure, "insecure", settings.Insecure, "Skip TLS certificate verification")
	flag.BoolVar(&follow, "follow", settings.FollowRedirects, "Follow redirects")
	flag.BoolVar(&forceHTTP2, "http2", settings.ForceHTTP2, "Force HTTP/2 transport")
	flag.StringVar(&proxyURL, "proxy", settings.Proxy, "HTTP proxy URL")
	flag.BoolVar(&noHistory, "no-history", false, "Do not record this run in history")
	flag.BoolVar(&noPersist, "no-persist", false, "Do not persist variable changes")
	flag.BoolVar(&showVersion, "version", false, "Show restman version")
	flag.Func("var", "Extra variable key=value, written to the extracted scope (repeatable)", func(raw string) error {
		key, value, found := strings.Cut(raw, "=")
		if !found || strings.TrimSpace(key) == "" {
			return fmt.Errorf("expected key=value, got %q", raw)
		}
		extraVars[strings.TrimSpace(key)] = value
		return nil
	})
	flag.StringVar(
		&otelEndpoint,
		"otel-endpoint",
		otelEndpoint,
		"OTLP collector endpoint for request spans",
	)
	flag.BoolVar(&otelInsecure, "otel-insecure", otelInsecure, "Disable TLS for OTLP export")
	flag.StringVar(
		&otelService,
		"otel-service",
		otelService,
		"Override service.name resource attribute for exported spans",
	)
	flag.Parse()

	if showVersion {
		fmt.Printf("restman %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	telemetryCfg.Endpoint = strings.TrimSpace(otelEndpoint)
	telemetryCfg.Insecure = otelInsecure
	telemetryCfg.ServiceName = strings.TrimSpace(otelService)
	telemetryCfg.Version = version

	if filePath == "" && collectionPath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" && collectionPath == "" {
		log.Fatal("nothing to run: pass -file or -collection")
	}

	store := vars.NewStore()
	if !noPersist {
		if err := vars.LoadFile(settings.VariablesPath, store); err != nil {
			log.Fatalf("load variables: %v", err)
		}
	}

	defs, err := loadDefinitions(filePath, collectionPath, store)
	if err != nil {
		log.Fatalf("load requests: %v", err)
	}
	if listRequests {
		names := make([]string, 0, len(defs))
		for _, def := range defs {
			names = append(names, def.Name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	if environmentPath != "" {
		env, err := postman.LoadEnvironmentFile(environmentPath)
		if err != nil {
			log.Fatalf("load environment: %v", err)
		}
		env.ApplyValues(store)
	}
	if envFile != "" {
		if err := vars.LoadDotEnv(envFile, store); err != nil {
			log.Fatalf("load env file: %v", err)
		}
	}
	for key, value := range extraVars {
		store.Set(vars.ScopeExtracted, key, value)
	}

	def, err := pickDefinition(defs, requestName)
	if err != nil {
		log.Fatal(err)
	}

	instrumenter, err := telemetry.New(telemetryCfg)
	if err != nil {
		log.Printf("telemetry disabled: %v", err)
		instrumenter = telemetry.Noop()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := instrumenter.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	client := httpclient.NewClient()
	client.SetTelemetry(instrumenter)

	pipe := pipeline.New(store, scripts.NewSandbox(scriptTimeout), client, httpclient.Options{
		Timeout:            timeout,
		FollowRedirects:    follow,
		InsecureSkipVerify: insecure,
		ProxyURL:           proxyURL,
		ForceHTTP2:         forceHTTP2,
	})

	result := pipe.Run(context.Background(), def)
	printResult(result)

	if !noHistory {
		histStore := history.NewStore(settings.HistoryPath, settings.HistoryLimit)
		if err := histStore.Append(history.NewEntry(result)); err != nil {
			log.Printf("history write: %v", err)
		}
	}
	if !noPersist {
		if err := vars.SaveFile(settings.VariablesPath, store); err != nil {
			log.Printf("persist variables: %v", err)
		}
	}

	os.Exit(exitCode(result))
}

func loadDefinitions(filePath, collectionPath string, store *vars.Store) ([]*reqdef.Definition, error) {
	if collectionPath != "" {
		collection, err := postman.LoadCollectionFile(collectionPath)
		if err != nil {
			return nil, err
		}
		collection.ApplyVariables(store)
		defs, warnings := collection.Flatten()
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "import: %s\n", warning)
		}
		return defs, nil
	}

	doc, err := reqdef.LoadYAMLFile(filePath)
	if err != nil {
		return nil, err
	}
	for key, value := range doc.Variables {
		store.Set(vars.ScopeCollection, key, value)
	}
	return doc.Requests, nil
}

func pickDefinition(defs []*reqdef.Definition, name string) (*reqdef.Definition, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("no requests found")
	}
	if name == "" {
		if len(defs) == 1 {
			return defs[0], nil
		}
		return nil, fmt.Errorf("multiple requests found, pick one with -request")
	}
	for _, def := range defs {
		if strings.EqualFold(def.Name, name) {
			return def, nil
		}
	}
	return nil, fmt.Errorf("request %q not found", name)
}

func printResult(result *pipeline.Result) {
	for _, line := range result.Console {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", line.Level, line.Message)
	}

	if result.State == pipeline.StateErrored {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
		if len(result.Unresolved) > 0 {
			fmt.Fprintf(os.Stderr, "unresolved: %s\n", strings.Join(result.Unresolved, ", "))
		}
		return
	}

	resp := result.Response
	if resp != nil {
		if resp.Failed {
			fmt.Fprintf(os.Stderr, "transport error: %s\n", resp.TransportError)
		} else {
			fmt.Printf("%s  (%s, %d bytes)\n", resp.Status, resp.Duration.Round(time.Millisecond), resp.Size)
			fmt.Println(resp.Text())
		}
	}

	for _, assertion := range result.Assertions {
		mark := "PASS"
		if !assertion.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(os.Stderr, "%s  %s", mark, assertion.Name)
		if assertion.Message != "" {
			fmt.Fprintf(os.Stderr, ": %s", assertion.Message)
		}
		fmt.Fprintln(os.Stderr)
	}
	if result.ScriptErr != nil {
		fmt.Fprintf(os.Stderr, "script error: %v\n", result.ScriptErr)
	}
}

func exitCode(result *pipeline.Result) int {
	if result.Failed() || result.ScriptErr != nil {
		return 1
	}
	for _, assertion := range result.Assertions {
		if !assertion.Passed {
			return 1
		}
	}
	return 0
}
