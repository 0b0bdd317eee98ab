package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/optimizer"
	"github.com/teatak/latseg/segmenter"
)

// Global segmenter with RWMutex for hot reloading
var (
	seg     *segmenter.Segmenter
	segLock sync.RWMutex

	// training serializes retraining runs
	training sync.Mutex
)

type server struct {
	cfg        config.Config
	checkpoint string
	textFile   string // training corpus
	accessLog  string // user inputs, folded into textFile on retrain
	feedback   string // gold segmentations taught through /feedback
}

func main() {
	klog.InitFlags(nil)
	addr := flag.String("addr", ":8080", "Listen address")
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	dataDir := flag.String("data", "data", "Directory holding the checkpoint, corpus and logs")
	flag.Parse()
	defer klog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			klog.Fatalf("%v", err)
		}
	}
	s := &server{
		cfg:        cfg,
		checkpoint: filepath.Join(*dataDir, "model.tsv"),
		textFile:   filepath.Join(*dataDir, "text.txt"),
		accessLog:  filepath.Join(*dataDir, "server_access.log"),
		feedback:   filepath.Join(*dataDir, "server_feedback.txt"),
	}

	// 1. Initial Load
	if err := s.reloadEngine(); err != nil {
		klog.Fatalf("Initial load failed: %v", err)
	}

	// 2. Setup Log file
	logF, err := os.OpenFile(s.accessLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		klog.Fatal(err)
	}
	defer logF.Close()
	var logMu sync.Mutex

	// 3. Handlers
	http.HandleFunc("/segment", func(w http.ResponseWriter, r *http.Request) {
		handleSegment(w, r, &lockedWriter{w: logF, mu: &logMu})
	})
	http.HandleFunc("/feedback", s.handleFeedback)        // teach a segmentation
	http.HandleFunc("/trigger-retrain", s.handleTrigger) // retrain on corpus + access log

	klog.Infof("Server started on %s", *addr)
	klog.Fatal(http.ListenAndServe(*addr, nil))
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// reloadEngine reloads the checkpoint from disk and swaps it in.
func (s *server) reloadEngine() error {
	klog.Info("Reloading engine...")
	newSeg, err := segmenter.Open(s.cfg, s.checkpoint)
	if err != nil {
		return err
	}
	segLock.Lock()
	seg = newSeg
	segLock.Unlock()
	klog.Infof("Engine reloaded successfully (%d units).", newSeg.Table.Dictionary().Len())
	return nil
}

// Request/Response types
type SegRequest struct {
	Text     string `json:"text"`
	Function string `json:"function"` // standard, search
}

type SegResponse struct {
	Tokens []string `json:"tokens"`
}

func handleSegment(w http.ResponseWriter, r *http.Request, logFile io.Writer) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SegRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 1. Log input for future retraining (Async write)
	go func(text string) {
		text = strings.ReplaceAll(text, "\n", " ")
		if len([]rune(text)) > 2 {
			if _, err := logFile.Write([]byte(text + "\n")); err != nil {
				klog.Warningf("access log: %v", err)
			}
		}
	}(req.Text)

	// 2. Process
	segLock.RLock()
	s := seg
	segLock.RUnlock()

	var tokens []string
	var err error
	if req.Function == "search" {
		tokens, err = s.CutSearch(req.Text)
	} else {
		tokens, err = s.Cut(req.Text)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SegResponse{Tokens: tokens})
}

func (s *server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	// The user tells us how a text splits: "A B" teaches that A and B are
	// separate units.
	rawInput := r.URL.Query().Get("word")
	words := strings.Fields(rawInput)
	if len(words) == 0 {
		http.Error(w, "word param required", http.StatusBadRequest)
		return
	}

	f, err := os.OpenFile(s.feedback, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	// Keep the whole input as one line so the boundaries survive; the text
	// itself also joins the training corpus.
	line := strings.Join(words, " ")
	if _, err := f.WriteString(line + "\n"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := appendLines(s.textFile, line); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go s.runOptimization()

	action := "added"
	if len(words) > 1 {
		action = "split and added"
	}
	fmt.Fprintf(w, "Words %v. Retraining started in background.", action)
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	// 1. Fold the access log into the training corpus
	content, err := os.ReadFile(s.accessLog)
	if err == nil && len(content) > 0 {
		if err := appendLines(s.textFile, strings.TrimRight(string(content), "\n")); err != nil {
			http.Error(w, fmt.Sprintf("Merging access log failed: %v", err), http.StatusInternalServerError)
			return
		}
		klog.Infof("Appended access log to %s", s.textFile)

		// Truncate access log after processing so we don't re-process old data
		if err := os.Truncate(s.accessLog, 0); err != nil {
			klog.Warningf("Failed to truncate log file: %v", err)
		}
	}

	// 2. Retrain
	go s.runOptimization()
	fmt.Fprintln(w, "Retraining started in background.")
}

func (s *server) runOptimization() {
	if !training.TryLock() {
		klog.Info("Retraining already running, skipping.")
		return
	}
	defer training.Unlock()

	klog.Info("Starting optimization pipeline...")
	_, err := optimizer.Run(context.Background(), s.cfg, optimizer.Options{
		Corpus:     s.textFile,
		Feedback:   s.feedback,
		MinFreq:    3,
		Checkpoint: s.checkpoint,
	})
	if err != nil {
		klog.Errorf("Optimization failed: %v", err)
		return
	}
	klog.Info("Optimization finished.")

	if err := s.reloadEngine(); err != nil {
		klog.Errorf("Reload failed: %v", err)
	}
}

func appendLines(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(text + "\n")
	return err
}
