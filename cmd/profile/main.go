//go:build profiling
// +build profiling

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"

	"github.com/meigma/courier"
)

type profileKind string

const (
	profileCPU   profileKind = "cpu"
	profileFG    profileKind = "fgprof"
	profileTrace profileKind = "trace"
	profileNone  profileKind = "none"

	defaultDownloadDir = "tmp/profiledownloads"
)

const (
	modeDownload = "download"
	modeUpload   = "upload"
	modeBoth     = "both"
)

func main() {
	var (
		target      = flag.String("url", "", "URL to download from and upload to (default: built-in local server)")
		size        = flag.String("size", "256MB", "payload size served by the built-in server")
		downloadDir = flag.String("download-dir", defaultDownloadDir, "download directory")
		mode        = flag.String("mode", modeDownload, "mode: download, upload, or both")
		pauseAt     = flag.Float64("pause-at", 0, "pause each download at this fraction and resume it (0 disables)")
		profile     = flag.String("profile", "cpu", "profile type: cpu, fgprof, trace, none")
		outDir      = flag.String("out", "profiles", "output directory for profiles")
		label       = flag.String("label", "", "label suffix for profile files")
		repeat      = flag.Int("repeat", 1, "number of iterations")
		clearDir    = flag.Bool("clear", true, "clear the download directory before running")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		stats       = flag.Bool("stats", false, "print download directory stats after run")
		timeout     = flag.Duration("timeout", 15*time.Minute, "overall timeout")
		pyroAddr    = flag.String("pyroscope", "", "Pyroscope server URL (enables streaming, disables local profiles)")
	)
	flag.Parse()

	runID := time.Now().UTC().Format("20060102T150405Z")

	modeValue := strings.ToLower(*mode)
	if modeValue != modeDownload && modeValue != modeUpload && modeValue != modeBoth {
		log.Fatalf("invalid mode %q (expected %s, %s, or %s)", *mode, modeDownload, modeUpload, modeBoth)
	}

	profileKindValue := profileKind(strings.ToLower(*profile))
	if !isValidProfile(profileKindValue) {
		log.Fatalf("invalid profile %q (expected cpu, fgprof, trace, none)", *profile)
	}
	if *repeat < 1 {
		log.Fatalf("repeat must be >= 1")
	}
	if *pauseAt < 0 || *pauseAt >= 1 {
		log.Fatalf("pause-at must be in [0, 1)")
	}

	payloadSize, err := humanize.ParseBytes(*size)
	if err != nil {
		log.Fatalf("parse size: %v", err)
	}

	// Without a target, serve a random payload locally.
	targetURL := *target
	if targetURL == "" {
		srv, err := newPayloadServer(int64(payloadSize))
		if err != nil {
			log.Fatalf("start payload server: %v", err)
		}
		defer srv.Close()
		targetURL = srv.URL + "/payload.bin"
		log.Printf("serving %s at %s", humanize.Bytes(payloadSize), targetURL)
	}

	// When Pyroscope is enabled, stream profiles instead of writing locally
	var pyroProfiler *pyroscope.Profiler
	if *pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "courier-profile",
			ServerAddress:   *pyroAddr,
			// Grafana Cloud requires BasicAuth (AuthToken is deprecated)
			BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
			BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
			UploadRate:        5 * time.Second,
			Logger:            pyroscope.StandardLogger,
			Tags: map[string]string{
				"mode":    modeValue,
				"git_sha": os.Getenv("GITHUB_SHA"),
				"git_ref": os.Getenv("GITHUB_REF_NAME"),
				"run_id":  runID,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("start pyroscope: %v", err)
		}
		pyroProfiler = profiler
		log.Printf("streaming profiles to %s", *pyroAddr)
	} else if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create profile output dir: %v", err)
	}

	labelParts := []string{modeValue}
	if *label != "" {
		labelParts = append(labelParts, sanitizeLabel(*label))
	}
	labelParts = append(labelParts, runID)
	labelValue := strings.Join(labelParts, "_")

	// Only start local profiling when not streaming to Pyroscope
	var stopProfile func() error
	if *pyroAddr == "" {
		stopProfile, err = startProfile(profileKindValue, *outDir, labelValue)
		if err != nil {
			log.Fatalf("start profile: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	absDownloadDir, err := filepath.Abs(*downloadDir)
	if err != nil {
		log.Fatalf("resolve download dir: %v", err)
	}
	if *clearDir {
		if err := courier.DownloadsClear(absDownloadDir); err != nil {
			log.Fatalf("clear download dir: %v", err)
		}
	}

	clientOpts := []courier.ClientOption{courier.WithDownloadDir(absDownloadDir)}
	if *logLevel != "" {
		level, err := parseLogLevel(*logLevel)
		if err != nil {
			log.Fatalf("parse log level: %v", err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		clientOpts = append(clientOpts, courier.WithLogger(logger))
	}

	client, err := courier.NewClient(clientOpts...)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}
	defer client.Close()

	var downloaded string
	for i := range *repeat {
		if *repeat > 1 {
			log.Printf("iteration %d/%d", i+1, *repeat)
		}
		if modeValue == modeDownload || modeValue == modeBoth {
			start := time.Now()
			path, err := download(ctx, client, targetURL, *pauseAt)
			if err != nil {
				log.Fatalf("download: %v", err)
			}
			downloaded = path
			log.Printf("download complete: %s", time.Since(start))
		}

		if modeValue == modeUpload || modeValue == modeBoth {
			body, err := uploadBody(downloaded, int64(payloadSize))
			if err != nil {
				log.Fatalf("prepare upload: %v", err)
			}
			start := time.Now()
			meta, err := client.Upload(ctx, targetURL, body, "application/octet-stream")
			if err != nil {
				log.Fatalf("upload: %v", err)
			}
			log.Printf("upload complete: status %d, %s", meta.StatusCode, time.Since(start))
		}
	}

	// Stop profiling - either Pyroscope or local
	if pyroProfiler != nil {
		if err := pyroProfiler.Stop(); err != nil {
			log.Fatalf("stop pyroscope: %v", err)
		}
		log.Printf("pyroscope profiling stopped")
	} else {
		if stopErr := stopProfile(); stopErr != nil {
			log.Fatalf("stop profile: %v", stopErr)
		}
		for _, name := range []string{"heap", "allocs"} {
			if err := writeSnapshot(name, *outDir, labelValue); err != nil {
				log.Fatalf("write %s profile: %v", name, err)
			}
		}
	}
	if *stats {
		if err := printDownloadStats(absDownloadDir); err != nil {
			log.Fatalf("print download stats: %v", err)
		}
	}
}

// download runs one download, pausing and resuming it once at pauseAt.
func download(ctx context.Context, client *courier.Client, url string, pauseAt float64) (string, error) {
	tr, err := client.StartDownload(ctx, url)
	if err != nil {
		return "", err
	}

	if pauseAt > 0 {
		watchCtx, stopWatch := context.WithCancel(ctx)
		for e := range tr.Subscribe(watchCtx) {
			if e.Type == courier.EventProgress && e.Progress.Fraction >= pauseAt {
				break
			}
		}
		stopWatch()
		if token := client.PauseDownload(); token != nil {
			log.Printf("paused at offset %d", token.Continuation().Offset)
			if _, err := client.ResumeDownload(ctx, token); err != nil {
				return "", err
			}
		}
	}

	result, err := tr.Wait(ctx)
	if err != nil {
		return "", err
	}
	return result.Path, nil
}

func uploadBody(path string, size int64) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	buf := make([]byte, size)
	_, err := rand.Read(buf)
	return buf, err
}

// newPayloadServer serves a random payload with range support and accepts uploads.
func newPayloadServer(size int64) (*httptest.Server, error) {
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return nil, err
	}
	modTime := time.Now()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.Header().Set("ETag", fmt.Sprintf(`"%x"`, modTime.UnixNano()))
			http.ServeContent(w, r, "payload.bin", modTime, bytes.NewReader(payload))
		case http.MethodPost:
			n, err := io.Copy(io.Discard, r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, "received %d bytes\n", n)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})), nil
}

func isValidProfile(kind profileKind) bool {
	switch kind {
	case profileCPU, profileFG, profileTrace, profileNone:
		return true
	default:
		return false
	}
}

// startProfile begins a profile of the given kind and returns its stop function.
func startProfile(kind profileKind, outDir, label string) (func() error, error) {
	if kind == profileNone {
		return func() error { return nil }, nil
	}

	ext := ".pprof"
	if kind == profileTrace {
		ext = ".out"
	}
	f, err := os.Create(filepath.Join(outDir, string(kind)+"_"+label+ext))
	if err != nil {
		return nil, err
	}

	var stop func() error
	switch kind {
	case profileCPU:
		err = pprof.StartCPUProfile(f)
		stop = func() error { pprof.StopCPUProfile(); return nil }
	case profileFG:
		stop = fgprof.Start(f, fgprof.FormatPprof)
	case profileTrace:
		err = trace.Start(f)
		stop = func() error { trace.Stop(); return nil }
	default:
		err = fmt.Errorf("unknown profile type: %s", kind)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() error {
		return errors.Join(stop(), f.Close())
	}, nil
}

// writeSnapshot writes a named runtime profile (heap, allocs) to outDir.
func writeSnapshot(name, outDir, label string) error {
	f, err := os.Create(filepath.Join(outDir, name+"_"+label+".pprof"))
	if err != nil {
		return err
	}
	defer f.Close()
	if name == "heap" {
		runtime.GC()
	}
	return pprof.Lookup(name).WriteTo(f, 0)
}

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeLabel(value string) string {
	return unsafeLabelChars.ReplaceAllString(value, "_")
}

func parseLogLevel(value string) (slog.Leveler, error) {
	var level slog.Level
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return nil, fmt.Errorf("unknown level %q", value)
	}
	return level, nil
}

func printDownloadStats(dir string) error {
	info, err := courier.DownloadsStats(dir)
	if err != nil {
		return err
	}
	log.Printf("download stats: dir=%s files=%d partial=%d size=%s",
		info.Path, info.EntryCount, info.PartialCount, humanize.IBytes(uint64(max(info.TotalSize, 0))))
	return nil
}
