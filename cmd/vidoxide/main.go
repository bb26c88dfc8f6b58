// Command vidoxide captures frames from a camera, a simulator or recorded
// video, computes histograms of the preview frames, records to disk, and
// drives a focuser from a game controller.
//
// Examples:
//
//	# List available cameras and quit.
//	vidoxide -listdevices
//
//	# Play a SER file at 30 fps and record 100 frames of it to TIFF files.
//	vidoxide -fps 30 -record 100 -format tiff -outdir /tmp/rec -ser jupiter.ser
//
//	# Play a list of images.
//	vidoxide -verbose img0001.png img0002.png img0003.png
//
//	# Simulated color camera with a raw sensor, recording for 10 seconds.
//	vidoxide -sim cfa8 -duration 10s
//
//	# Live camera through ffmpeg, with metrics and a configuration file.
//	vidoxide -camera -backend ffmpeg -device /dev/video0 -metrics :9090 -config vidoxide.yaml
//
//	# Camera through imagesnap. NOTE: on macOS, imagesnap is the default backend.
//	vidoxide -camera -device 'FaceTime HD Camera (Built-in)'
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	vidoxide "github.com/vidoxide/vidoxide-go"
	"github.com/vidoxide/vidoxide-go/capture"
	"github.com/vidoxide/vidoxide-go/capture/ffmpeg"
	"github.com/vidoxide/vidoxide-go/capture/gstreamer"
	"github.com/vidoxide/vidoxide-go/capture/imagesnap"
	"github.com/vidoxide/vidoxide-go/controller"
	"github.com/vidoxide/vidoxide-go/histogram"
	"github.com/vidoxide/vidoxide-go/input/detect"
	"github.com/vidoxide/vidoxide-go/internal/config"
	"github.com/vidoxide/vidoxide-go/internal/metrics"
	"github.com/vidoxide/vidoxide-go/output"
	"github.com/vidoxide/vidoxide-go/output/fileseq"
	outser "github.com/vidoxide/vidoxide-go/output/ser"
	"github.com/vidoxide/vidoxide-go/recording"
)

var (
	configPath   string
	listDevices  bool
	serPath      string
	simFormat    string
	useCamera    bool
	backend      string
	deviceID     string
	fps          float64
	recordFrames int
	recordFor    time.Duration
	outDir       string
	format       string
	crop         string
	histInterval time.Duration
	metricsAddr  string
	noController bool
	verbose      bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file; flags override its values")
	flag.BoolVar(&listDevices, "listdevices", false, "if set, lists cameras and exits")
	flag.StringVar(&serPath, "ser", "", "SER file to play")
	flag.StringVar(&simFormat, "sim", "", "use the camera simulator with pixel format mono8, rgb8 or cfa8")
	flag.BoolVar(&useCamera, "camera", false, "capture from a camera, see -backend")
	backend = "gstreamer"
	if runtime.GOOS == "darwin" {
		backend = "imagesnap"
	}
	flag.StringVar(&backend, "backend", backend, "camera backend, imagesnap on macOS; gstreamer or ffmpeg on linux")
	flag.StringVar(&deviceID, "device", "", "camera device to use, by default the first device returned when listing devices")
	flag.Float64Var(&fps, "fps", 0, "frame rate of recorded input, the simulator and the camera")
	flag.IntVar(&recordFrames, "record", 0, "if > 0, record this many frames and exit")
	flag.DurationVar(&recordFor, "duration", 0, "if > 0, record for this long and exit")
	flag.StringVar(&outDir, "outdir", "", "directory for recordings")
	flag.StringVar(&format, "format", "", "recording format: ser, tiff or bmp")
	flag.StringVar(&crop, "crop", "", "record only this region, as x0,y0,x1,y1")
	flag.DurationVar(&histInterval, "histinterval", -1, "minimum time between histograms")
	flag.StringVar(&metricsAddr, "metrics", "", "if set, serve Prometheus metrics at this address, e.g. :9090")
	flag.BoolVar(&noController, "nocontroller", false, "do not listen for game controllers")
	flag.BoolVar(&verbose, "verbose", false, "print verbose output")
}

func usage() {
	log.Println("usage: vidoxide [flags] [-ser file.ser | -sim format | -camera | image ...]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	os.Exit(main0(args))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = cfg.Verbose || verbose
	if fps > 0 {
		cfg.Capture.FPS = fps
	}
	if outDir != "" {
		cfg.Recording.Dir = outDir
	}
	if format != "" {
		cfg.Recording.Format = format
	}
	if histInterval >= 0 {
		cfg.Histogram.IntervalMS = int(histInterval / time.Millisecond)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if noController {
		cfg.Controller.Enabled = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func parseCrop(s string) (image.Rectangle, error) {
	if s == "" {
		return image.Rectangle{}, nil
	}
	var r image.Rectangle
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &r.Min.X, &r.Min.Y, &r.Max.X, &r.Max.Y); err != nil {
		return r, fmt.Errorf("parsing crop %q: %w", s, err)
	}
	if r.Empty() || r != r.Canon() {
		return r, fmt.Errorf("invalid crop %q", s)
	}
	return r, nil
}

func openCapturer(cfg *config.Config, args []string) (capture.Capturer, error) {
	switch {
	case useCamera:
		switch backend {
		case "ffmpeg":
			return ffmpeg.NewCapturer(&ffmpeg.Opts{Verbose: cfg.Verbose, FPS: cfg.Capture.FPS, DeviceID: deviceID})
		case "gstreamer":
			return gstreamer.NewCapturer(&gstreamer.Opts{Verbose: cfg.Verbose, FPS: cfg.Capture.FPS, DeviceID: deviceID})
		case "imagesnap":
			return imagesnap.NewCapturer(&imagesnap.Opts{Verbose: cfg.Verbose, FPS: cfg.Capture.FPS, DeviceID: deviceID})
		}
		return nil, fmt.Errorf("unknown camera backend %q", backend)

	case simFormat != "":
		formats := map[string]vidoxide.PixelFormat{
			"mono8": vidoxide.PixelFormatMono8,
			"rgb8":  vidoxide.PixelFormatRGB8,
			"cfa8":  vidoxide.PixelFormatCFAGBRG8,
		}
		f, ok := formats[strings.ToLower(simFormat)]
		if !ok {
			return nil, fmt.Errorf("unknown simulator format %q", simFormat)
		}
		return capture.NewSimulator(&capture.SimulatorOpts{Format: f, FPS: cfg.Capture.FPS})
	}

	paths := args
	if serPath != "" {
		paths = append([]string{serPath}, args...)
	}
	if len(paths) == 0 {
		usage()
	}
	seq, err := detect.Open(paths, &detect.Opts{Verbose: cfg.Verbose})
	if err != nil {
		return nil, err
	}
	c, err := capture.NewSequenceCapturer(seq, &capture.SequenceOpts{FPS: cfg.Capture.FPS, Verbose: cfg.Verbose})
	if err != nil {
		seq.Close()
		return nil, err
	}
	return c, nil
}

// newWriter creates the output of a new recording, named after the current
// time.
func newWriter(cfg *config.Config) (output.Writer, string, error) {
	name := time.Now().Format("2006-01-02_15-04-05")
	switch f := cfg.RecordingFormat(); f {
	case output.FormatSER:
		if err := os.MkdirAll(cfg.Recording.Dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("making recording dir: %w", err)
		}
		path := filepath.Join(cfg.Recording.Dir, name+".ser")
		w, err := outser.Create(path, &outser.Opts{
			Observer:   cfg.Recording.Observer,
			Instrument: cfg.Recording.Instrument,
			Telescope:  cfg.Recording.Telescope,
			Verbose:    cfg.Verbose,
		})
		return w, path, err
	default:
		dir := filepath.Join(cfg.Recording.Dir, name)
		w, err := fileseq.New(dir, f, &fileseq.Opts{
			Prefix:   cfg.Recording.Prefix,
			Compress: cfg.Recording.Compress,
			Verbose:  cfg.Verbose,
		})
		return w, dir, err
	}
}

func printDevices() error {
	switch backend {
	case "ffmpeg":
		devs, err := ffmpeg.ListDevices()
		if err != nil {
			return err
		}
		for _, dev := range devs {
			fmt.Printf("%s: %s\n", dev.ID, dev.Name)
		}
	case "gstreamer":
		devs, err := gstreamer.ListDevices(640, 480)
		if err != nil {
			return err
		}
		for _, dev := range devs {
			fmt.Printf("%s: %s\n", dev.ID, dev.Name)
			for _, m := range dev.Modes {
				fmt.Printf("\t%dx%d @ %d fps\n", m.Width, m.Height, m.Framerate)
			}
		}
	case "imagesnap":
		devs, err := imagesnap.ListDevices()
		if err != nil {
			return err
		}
		for _, dev := range devs {
			fmt.Println(dev.Name)
		}
	default:
		return fmt.Errorf("unknown camera backend %q", backend)
	}
	return nil
}

func main0(args []string) int {
	if listDevices {
		if err := printDevices(); err != nil {
			log.Printf("listing devices: %v", err)
			return 1
		}
		return 0
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	region, err := parseCrop(crop)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}
	assignments, err := cfg.Assignments()
	if err != nil {
		log.Printf("%v", err)
		return 2
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.StartServer(cfg.MetricsAddr); err != nil {
				log.Printf("serving metrics: %v", err)
			}
		}()
	}

	capturer, err := openCapturer(cfg, args)
	if err != nil {
		log.Printf("opening source: %v", err)
		return 1
	}

	buffered := &recording.Buffer{}
	capWorker := capture.NewWorker(capturer, &capture.WorkerOpts{
		Verbose:        cfg.Verbose,
		Metrics:        m,
		Buffer:         buffered,
		MaxBufferedKiB: cfg.MaxBufferedKiB(),
	})
	recWorker := recording.NewWorker(&recording.WorkerOpts{
		Verbose: cfg.Verbose,
		Metrics: m,
		Buffer:  buffered,
	})
	histWorker := histogram.NewWorker(&histogram.WorkerOpts{
		Verbose: cfg.Verbose,
		Metrics: m,
	})

	var ctrlWorker *controller.Worker
	var ctrlMsgs <-chan controller.Msg
	if cfg.Controller.Enabled {
		listener, err := controller.NewJoystickListener(&controller.JoystickOpts{
			Dir:     cfg.Controller.Dir,
			SysDir:  cfg.Controller.SysDir,
			Verbose: cfg.Verbose,
		})
		if err != nil {
			log.Printf("not listening for controllers: %v", err)
		} else {
			ctrlWorker = controller.NewWorker(listener, &controller.WorkerOpts{Verbose: cfg.Verbose, Metrics: m})
			ctrlMsgs = ctrlWorker.Messages()
		}
	}

	a := &app{
		cfg:        cfg,
		capWorker:  capWorker,
		recWorker:  recWorker,
		histWorker: histWorker,
		focuser:    vidoxide.NewFocuserSimulator(),
	}
	if region != (image.Rectangle{}) {
		capWorker.Send(capture.SetRecordingCrop{Region: region})
	}

	var status int
	if err := a.startRequested(); err != nil {
		log.Printf("starting recording: %v", err)
		status = 1
	} else {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		status = a.loop(signals, ctrlMsgs, assignments)
	}

	// Capture ends its recording job, after which recording can finish.
	capWorker.Close()
	<-capWorker.Done()
	recWorker.Close()
	for r := range recWorker.Reports() {
		a.onReport(r)
	}
	histWorker.Close()
	<-histWorker.Done()
	if ctrlWorker != nil {
		ctrlWorker.Close()
		<-ctrlWorker.Done()
	}
	if err := a.focuser.Move(0); err != nil {
		log.Printf("stopping focuser: %v", err)
	}
	return status
}

// app is the state of the consumer loop.
type app struct {
	cfg        *config.Config
	capWorker  *capture.Worker
	recWorker  *recording.Worker
	histWorker *histogram.Worker
	focuser    vidoxide.Focuser

	recording          bool
	exitAfterRecording bool
	jobs               int
	lastHistogram      time.Time
	histograms         int
	histSent           uint64 // Seq of the last request.
	histAnswered       uint64
	histStalled        bool
}

// histogramStall is how long a histogram request may go unanswered before the
// worker is reported as stalled.
const histogramStall = 5 * time.Second

func (a *app) startRecording(limit recording.Limit) error {
	w, path, err := newWriter(a.cfg)
	if err != nil {
		return err
	}
	job, frames := recording.NewJob(w)
	a.recWorker.Add(job)
	a.capWorker.Send(capture.StartRecording{Frames: frames, Limit: limit})
	a.recording = true
	a.jobs++
	log.Printf("recording %v to %s", limit, path)
	return nil
}

// startRequested starts the recording asked for with -record or -duration,
// after which the command exits.
func (a *app) startRequested() error {
	var limit recording.Limit
	switch {
	case recordFrames > 0:
		limit = recording.FrameCount(recordFrames)
	case recordFor > 0:
		limit = recording.ForDuration(recordFor)
	default:
		return nil
	}
	a.exitAfterRecording = true
	return a.startRecording(limit)
}

// recordingDone reports whether the recording requested on the command line
// has been written.
func (a *app) recordingDone() bool {
	return a.exitAfterRecording && !a.recording && a.jobs == 0
}

func (a *app) toggleRecording() {
	if a.recording {
		a.capWorker.Send(capture.StopRecording{})
		a.recording = false
		log.Printf("recording stopped")
		return
	}
	if err := a.startRecording(recording.Forever); err != nil {
		log.Printf("starting recording: %v", err)
	}
}

// loop runs until interrupted, until capture ends, or until the requested
// recording is written. It returns the exit status.
func (a *app) loop(signals <-chan os.Signal, ctrlMsgs <-chan controller.Msg, assignments controller.Assignments) int {
	capMsgs := a.capWorker.Messages()
	reports := a.recWorker.Reports()
	results := a.histWorker.Results()
	status := 0

	for {
		select {
		case <-signals:
			log.Printf("interrupted")
			return 1

		case msg, ok := <-capMsgs:
			if !ok {
				log.Printf("capture ended")
				return status
			}
			switch msg := msg.(type) {
			case capture.PreviewImageReady:
				a.onPreview(msg.Frame)
			case capture.Paused:
				log.Printf("capture paused")
			case capture.CaptureError:
				log.Printf("capture error: %v", msg.Err)
				status = 1
			case capture.RecordingFinished:
				a.recording = false
				log.Printf("recording finished")
				if a.recordingDone() {
					return status
				}
			case capture.Info:
				if msg.Recording != "" {
					log.Printf("capture: %.1f fps; %s", msg.CaptureFPS, msg.Recording)
				} else if a.cfg.Verbose {
					log.Printf("capture: %.1f fps", msg.CaptureFPS)
				}
			}

		case r, ok := <-reports:
			if !ok {
				reports = nil
				continue
			}
			a.onReport(r)
			if _, ok := r.(recording.JobFinished); ok {
				a.jobs--
				if a.recordingDone() {
					return status
				}
			}

		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			a.histAnswered = res.Seq
			a.histStalled = false
			if res.Err != nil {
				log.Printf("histogram %d: %v", res.Seq, res.Err)
				continue
			}
			a.histograms++
			h := res.Histogram
			if h.IsRGB {
				fmt.Printf("histogram %d: mean R %.1f G %.1f B %.1f\n", res.Seq, h.Mean(histogram.Red), h.Mean(histogram.Green), h.Mean(histogram.Blue))
			} else {
				fmt.Printf("histogram %d: mean %.1f, max %d\n", res.Seq, h.Mean(histogram.Red), h.Max(histogram.Red))
			}

		case msg, ok := <-ctrlMsgs:
			if !ok {
				ctrlMsgs = nil
				continue
			}
			a.onController(msg, assignments)
		}
	}
}

// onPreview takes the place of a display: the frame goes to the histogram
// worker, and the next preview is requested right away.
func (a *app) onPreview(f *vidoxide.Frame) {
	defer a.capWorker.WantPreview()
	now := time.Now()
	if a.histSent != a.histAnswered {
		if !a.histStalled && now.Sub(a.lastHistogram) >= histogramStall {
			log.Printf("histogram worker stalled: request %d unanswered for %v", a.histSent, now.Sub(a.lastHistogram).Round(time.Second))
			a.histStalled = true
		}
		return
	}
	if now.Sub(a.lastHistogram) >= a.cfg.HistogramInterval() {
		a.lastHistogram = now
		a.histSent = a.histWorker.Calculate(f, nil)
	}
}

func (a *app) onReport(r recording.Report) {
	switch r := r.(type) {
	case recording.Info:
		if a.cfg.Verbose || r.Jobs > 0 {
			log.Printf("%s", r)
		}
	case recording.Error:
		log.Printf("recording %s: %v", r.JobID, r.Err)
	case recording.CaptureThreadEnded:
		log.Printf("recording %s: capture ended before the recording was finished", r.JobID)
	case recording.JobFinished:
		log.Printf("recording %s: saved %d frames", r.JobID, r.Frames)
	}
}

func (a *app) onController(msg controller.Msg, assignments controller.Assignments) {
	switch msg := msg.(type) {
	case controller.NewDevice:
		log.Printf("controller %d: %s [%016X]", msg.Index, msg.Name, msg.ID)
	case controller.DeviceError:
		log.Printf("controller: %v", msg.Err)
	case controller.StickEvent:
		if a.cfg.Verbose {
			log.Printf("controller %d: %v", msg.Index, msg.Event)
		}
		act, ok := assignments.Dispatch(msg)
		if !ok {
			return
		}
		switch act.Target {
		case controller.TargetToggleRecording:
			if act.Pressed {
				a.toggleRecording()
			}
		case controller.TargetFocuserIn, controller.TargetFocuserOut:
			err := a.focuser.Move(act.Speed)
			if err != nil {
				log.Printf("moving focuser: %v", err)
			} else if pos, err := a.focuser.Position(); err == nil && a.cfg.Verbose {
				log.Printf("focuser at %d, speed %.2f", pos, act.Speed)
			}
		}
	}
}
