package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/segmenter"
)

func main() {
	klog.InitFlags(nil)
	function := flag.String("func", "cut", "Segmentation function: cut (standard) or search (for search engine)")
	configPath := flag.String("config", "", "Path to a YAML config file (defaults are used when empty)")
	checkpoint := flag.String("checkpoint", "data/model.tsv", "Path to the learned unit weights")
	color := flag.Bool("color", false, "Render unit boundaries with alternating colors instead of \" / \"")
	flag.Parse()
	defer klog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if !fileExists(*checkpoint) {
		fmt.Fprintf(os.Stderr, "Error: checkpoint not found at %s. Train one with cmd/train.\n", *checkpoint)
		os.Exit(1)
	}
	seg, err := segmenter.Open(cfg, *checkpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading checkpoint: %v\n", err)
		os.Exit(1)
	}
	klog.V(1).Infof("loaded %d units from %s", seg.Table.Dictionary().Len(), *checkpoint)

	// Helper to process text
	process := func(text string) {
		var result []string
		if *function == "search" {
			result, err = seg.CutSearch(text)
		} else {
			result, err = seg.Cut(text)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		if *color {
			fmt.Println(render(result))
			return
		}
		fmt.Println(strings.Join(result, " / "))
	}

	// If args provided (non-flag args), segment them
	if args := flag.Args(); len(args) > 0 {
		process(strings.Join(args, " "))
		return
	}

	// Otherwise interactive mode
	fmt.Println("Enter text to segment (Ctrl+D to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		process(text)
	}
}

var unitStyles = []lipgloss.Style{
	lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("63")),
	lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("203")),
}

// render alternates two background colors so adjacent units stay apart.
func render(units []string) string {
	var sb strings.Builder
	for i, u := range units {
		sb.WriteString(unitStyles[i%len(unitStyles)].Render(u))
	}
	return sb.String()
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
