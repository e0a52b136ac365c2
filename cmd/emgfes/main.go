// Command emgfes classifies surface EMG from a serial board into finger
// movements and drives an FES stimulator with the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/api"
	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/console"
	"github.com/banshee-data/emgfes/internal/db"
	"github.com/banshee-data/emgfes/internal/dsp"
	"github.com/banshee-data/emgfes/internal/emg"
	"github.com/banshee-data/emgfes/internal/fes"
	"github.com/banshee-data/emgfes/internal/monitor"
	"github.com/banshee-data/emgfes/internal/mqttsink"
	"github.com/banshee-data/emgfes/internal/serialmux"
	"github.com/banshee-data/emgfes/internal/session"
	"github.com/banshee-data/emgfes/internal/version"
)

var (
	emgPortFlag = flag.String("emg-port", "", "EMG board serial port (default $EMG_PORT)")
	fesPortFlag = flag.String("fes-port", "", "FES stimulator serial port (default $FES_PORT)")
	modelFlag   = flag.String("model", "", "Model artifact: .json, .h5, .keras or .onnx (default $EMG_MODEL)")
	configFlag  = flag.String("config", "", "Acquisition config file (.json, .yaml or .yml)")
	sessionsDir = flag.String("sessions-dir", "sessions", "Directory for session CSV files")
	dbFlag      = flag.String("db", "sessions.db", "Session archive database (empty disables the archive)")
	listen      = flag.String("listen", ":8080", "HTTP listen address (empty disables the API)")
	devMode     = flag.Bool("dev", false, "Run without hardware: synthetic EMG in, FES commands to a capture file")
	fixture     = flag.String("fixture", "", "Dev mode: loop EMG records from this file instead of generating them")
	fesCapture  = flag.String("fes-capture", "fes-capture.txt", "Dev mode: file receiving FES commands")
	disableFES  = flag.Bool("disable-fes", false, "Classify without driving a stimulator")
	tuiFlag     = flag.Bool("tui", false, "Show the terminal console")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker host:port to publish events to")
	mqttTopic   = flag.String("mqtt-topic", mqttsink.DefaultTopicPrefix, "MQTT topic prefix")
	versionFlag = flag.Bool("version", false, "Print version information and exit")
)

// devRMSThreshold is the idle threshold of the built-in dev model, in
// conditioned ADC counts.
const devRMSThreshold = 40

// devBurstPeriod is how long each synthetic channel stays active.
const devBurstPeriod = 1.5

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	// .env only supplies defaults; a missing file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Current())
		return
	}

	emgPath := envDefault(*emgPortFlag, "EMG_PORT")
	fesPath := envDefault(*fesPortFlag, "FES_PORT")
	modelPath := envDefault(*modelFlag, "EMG_MODEL")

	p, err := loadPipeline(*configFlag)
	if err != nil {
		log.Fatalf("failed to load acquisition config: %v", err)
	}
	log.Printf("%s: %d channels at %.0fHz, %d samples per window", version.Current(), p.Channels, p.SampleRateHz, p.SamplesPerWindow)

	if err := os.MkdirAll(*sessionsDir, 0o755); err != nil {
		log.Fatalf("failed to create sessions directory: %v", err)
	}

	// when the console owns the terminal, logs go to a file
	if *tuiFlag {
		f, err := tea.LogToFile("emgfes.log", "")
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
	}

	// EMG input
	var emgConn serialmux.TimeoutSerialPorter
	if *devMode {
		emgConn, err = devEMGPort(p, *fixture)
		if err != nil {
			log.Fatalf("failed to set up dev EMG source: %v", err)
		}
		log.Printf("dev mode: EMG from %s", describeDevSource(*fixture))
	} else {
		if emgPath == "" {
			log.Fatal("EMG port is required (-emg-port or EMG_PORT)")
		}
		emgConn, err = serialmux.OpenPort(emgPath, serialmux.PortOptions{BaudRate: p.EMGBaud, ReadTimeout: p.ReadTimeout})
		if err != nil {
			log.Fatalf("failed to open EMG port: %v", err)
		}
	}
	defer emgConn.Close()

	// FES output
	var fesMux serialmux.SerialMuxInterface
	switch {
	case *disableFES:
		fesMux = serialmux.NewDisabledSerialMux("fes")
		log.Print("FES output disabled")
	case *devMode:
		capture, err := serialmux.NewCapturePort(*fesCapture)
		if err != nil {
			log.Fatalf("failed to create FES capture: %v", err)
		}
		fesMux = serialmux.NewSerialMux(capture, "fes")
	default:
		if fesPath == "" {
			log.Fatal("FES port is required (-fes-port or FES_PORT), or pass -disable-fes")
		}
		fesMux, err = serialmux.NewRealSerialMux(fesPath, "fes", serialmux.PortOptions{BaudRate: p.FESBaud})
		if err != nil {
			log.Fatalf("failed to open FES port: %v", err)
		}
	}
	defer fesMux.Close()

	if !*devMode && p.SettleDelay > 0 {
		// boards reset when the port opens
		log.Printf("waiting %v for serial devices to settle", p.SettleDelay)
		time.Sleep(p.SettleDelay)
	}

	// Model
	model, err := openModel(modelPath, *devMode, p)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	defer model.Close()
	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), p.WorkerTimeout+5*time.Second)
	err = classifier.Verify(verifyCtx, model, p.SamplesPerWindow, p.Channels, len(p.ClassNames))
	cancelVerify()
	if err != nil {
		log.Fatalf("model does not fit the pipeline: %v", err)
	}

	table, err := classifier.NewTable(p.ClassNames, p.IdleClass)
	if err != nil {
		log.Fatalf("invalid class table: %v", err)
	}
	conditioner, err := dsp.NewConditioner(p)
	if err != nil {
		log.Fatalf("failed to design filters: %v", err)
	}
	log.Printf("conditioning stages: %v", conditioner.Stages())

	plotter := monitor.NewWindowPlotter(p.SampleRateHz)
	ctrl := acquisition.NewController(acquisition.Config{
		Pipeline:    p,
		Source:      emg.NewReader(emgConn, p.Channels),
		Conditioner: conditioner,
		Classifier:  classifier.New(model, table, p.SamplesPerWindow, p.Channels),
		Actuator:    fes.NewDispatcher(fesMux),
		Table:       table,
		Observer:    plotter.Observe,
	})

	var database *db.DB
	if *dbFlag != "" {
		database, err = db.NewDB(*dbFlag)
		if err != nil {
			log.Fatalf("failed to open session archive: %v", err)
		}
		defer database.Close()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// replies from the stimulator feed the /debug tail
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fesMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor FES port: %v", err)
		}
		log.Print("FES monitor routine terminated")
	}()

	if *mqttBroker != "" {
		host, _ := os.Hostname()
		sink, err := mqttsink.Connect(mqttsink.Options{
			Broker:      *mqttBroker,
			ClientID:    "emgfes-" + host,
			TopicPrefix: *mqttTopic,
		})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer sink.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Run(ctx, ctrl.Hub())
			published, failed := sink.Stats()
			log.Printf("MQTT sink stopped: %d published, %d failed", published, failed)
		}()
	}

	if *listen != "" {
		mux := api.NewServer(api.Options{
			Controller:  ctrl,
			DB:          database,
			Table:       table,
			Channels:    p.Channels,
			SessionsDir: *sessionsDir,
			Ports:       []api.PortStatter{fesMux},
		}).ServeMux()
		fesMux.AttachAdminRoutes(mux)
		plotter.AttachAdminRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, *listen, api.LoggingMiddleware(mux))
		}()
	}

	if *tuiFlag {
		actions := &console.ControllerActions{
			Controller:  ctrl,
			SessionsDir: *sessionsDir,
			Archive:     archiver(database, p.Channels),
		}
		if err := console.Run(ctx, actions, ctrl.Hub(), p.ClassNames); err != nil {
			log.Printf("console error: %v", err)
		}
		stop()
	} else {
		log.Print("ready; start a session from the API")
	}

	<-ctx.Done()
	ctrl.Close()
	ctrl.Hub().Close()
	wg.Wait()

	st := ctrl.Stats()
	log.Printf("%d windows classified, %d dispatched, %d malformed records", st.Classified, st.Dispatches, st.Malformed)
	if n := ctrl.Recorder().Len(); n > 0 {
		log.Printf("warning: %d unsaved session records discarded on exit", n)
	}
	log.Printf("Graceful shutdown complete")
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "sessions.db", "Session archive database")
	fs.Usage = func() { db.PrintMigrateHelp(os.Stderr) }
	fs.Parse(args)
	if err := db.RunMigrateCommand(fs.Args(), *dbPath, os.Stdout); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP API listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// websocket streams do not end on Shutdown
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}

// envDefault returns v, or the environment variable key when v is empty.
func envDefault(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func loadPipeline(path string) (config.Pipeline, error) {
	if path == "" {
		return config.DefaultPipeline(), nil
	}
	f, err := config.LoadFile(path)
	if err != nil {
		return config.Pipeline{}, err
	}
	return f.Pipeline()
}

// openModel loads the artifact at path. Dev mode without an artifact uses
// a per-channel RMS model matching the synthetic generator.
func openModel(path string, dev bool, p config.Pipeline) (classifier.Model, error) {
	if path == "" {
		if !dev {
			return nil, errors.New("model artifact is required (-model or EMG_MODEL)")
		}
		idle := 0
		for i, name := range p.ClassNames {
			if name == p.IdleClass {
				idle = i
			}
		}
		log.Printf("dev mode: using built-in RMS model (threshold %d)", devRMSThreshold)
		m, err := classifier.NewDenseModel(classifier.RMSArtifact(p.SamplesPerWindow, p.Channels, len(p.ClassNames), idle, devRMSThreshold))
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return classifier.LoadModel(path, classifier.WorkerOptions{Command: p.WorkerCommand, Timeout: p.WorkerTimeout})
}

func devEMGPort(p config.Pipeline, fixturePath string) (*emg.PacedPort, error) {
	next := emg.NewSynthetic(p.Channels, p.SampleRateHz, devBurstPeriod, uint64(time.Now().UnixNano())).Line
	if fixturePath != "" {
		lines, err := emg.LoadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		next = emg.CycleLines(lines)
	}
	port := emg.NewPacedPort(p.SampleRateHz, next)
	if err := port.SetReadTimeout(p.ReadTimeout); err != nil {
		return nil, err
	}
	return port, nil
}

func describeDevSource(fixturePath string) string {
	if fixturePath != "" {
		return "fixture " + fixturePath
	}
	return "synthetic generator"
}

// archiver stores saved sessions in the archive. Failures are logged: the
// CSV on disk is the session of record.
func archiver(database *db.DB, channels int) func(string, []session.Record) {
	if database == nil {
		return nil
	}
	return func(path string, records []session.Record) {
		id, err := database.ArchiveSession(path, channels, records)
		if err != nil {
			log.Printf("failed to archive session %s: %v", path, err)
			return
		}
		log.Printf("archived session %s as %s", path, id)
	}
}
