// Package main runs the mock server benchmarks and writes the results to
// JSON and Markdown.
// Run with: go run benchmarks/run_benchmarks.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BenchmarkResults holds all benchmark data.
type BenchmarkResults struct {
	Timestamp   string             `json:"timestamp"`
	Environment Environment        `json:"environment"`
	Suites      map[string][]Bench `json:"suites"`
}

type Environment struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPU       string `json:"cpu"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
}

type Bench struct {
	Name        string  `json:"name"`
	NsPerOp     float64 `json:"ns_per_op"`
	OpsPerSec   float64 `json:"ops_per_sec"`
	BytesPerOp  int64   `json:"bytes_per_op"`
	AllocsPerOp int64   `json:"allocs_per_op"`
}

// suites maps a report section to the package holding its benchmarks.
var suites = []struct {
	name    string
	pkg     string
	pattern string
}{
	{"matching", "./internal/matching/", "."},
	{"registry", "./pkg/engine/", "BenchmarkRegistry"},
	{"handler", "./pkg/engine/", "BenchmarkHandler"},
}

var benchLine = regexp.MustCompile(`(Benchmark[\w/]+)-\d+\s+(\d+)\s+([\d.]+)\s+ns/op\s+(\d+)\s+B/op\s+(\d+)\s+allocs/op`)

func main() {
	fmt.Println("==========================================")
	fmt.Println("   MOCKSERVER BENCHMARK SUITE")
	fmt.Println("==========================================")

	results := BenchmarkResults{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Environment: Environment{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPU:       cpuModel(),
			NumCPU:    runtime.NumCPU(),
			GoVersion: runtime.Version(),
		},
		Suites: make(map[string][]Bench),
	}

	for _, s := range suites {
		fmt.Printf("Running %s benchmarks...\n", s.name)
		benches, err := runBenchmarks(s.pkg, s.pattern)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", s.name, err)
			os.Exit(1)
		}
		results.Suites[s.name] = benches
	}

	if err := writeJSON(results, "benchmarks/results/latest.json"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := writeMarkdown(results, "benchmarks/results/LATEST.md"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("\nResults written to benchmarks/results/")
}

func cpuModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "unknown"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if name, ok := strings.CutPrefix(line, "model name"); ok {
			return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), ":"))
		}
	}
	return "unknown"
}

func runBenchmarks(pkg, pattern string) ([]Bench, error) {
	cmd := exec.Command("go", "test", "-run=^$", "-bench="+pattern, "-benchtime=1s", "-benchmem", pkg)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("go test: %w\n%s", err, out)
	}
	return parseBenchmarkOutput(string(out)), nil
}

func parseBenchmarkOutput(output string) []Bench {
	var benches []Bench
	for _, m := range benchLine.FindAllStringSubmatch(output, -1) {
		ns, _ := strconv.ParseFloat(m[3], 64)
		bytes, _ := strconv.ParseInt(m[4], 10, 64)
		allocs, _ := strconv.ParseInt(m[5], 10, 64)
		b := Bench{Name: m[1], NsPerOp: ns, BytesPerOp: bytes, AllocsPerOp: allocs}
		if ns > 0 {
			b.OpsPerSec = 1e9 / ns
		}
		benches = append(benches, b)
	}
	return benches
}

func writeJSON(results BenchmarkResults, path string) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeMarkdown(results BenchmarkResults, path string) error {
	var sb strings.Builder
	sb.WriteString("# Benchmark Results\n\n")
	fmt.Fprintf(&sb, "%s, %s/%s, %s (%d CPUs), %s\n\n", results.Timestamp,
		results.Environment.OS, results.Environment.Arch, results.Environment.CPU,
		results.Environment.NumCPU, results.Environment.GoVersion)

	title := cases.Title(language.English)
	for _, s := range suites {
		fmt.Fprintf(&sb, "## %s\n\n", title.String(s.name))
		sb.WriteString("| Benchmark | ns/op | ops/sec | B/op | allocs/op |\n")
		sb.WriteString("|-----------|-------|---------|------|-----------|\n")
		for _, b := range results.Suites[s.name] {
			fmt.Fprintf(&sb, "| %s | %.0f | %.0f | %d | %d |\n", b.Name, b.NsPerOp, b.OpsPerSec, b.BytesPerOp, b.AllocsPerOp)
		}
		sb.WriteString("\n")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
