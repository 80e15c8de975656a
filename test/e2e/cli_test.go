package e2e

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// runCLI executes the built binary with HOME pointed at a temp directory
// so config and log files never touch the real user profile.
func runCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(cliBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "HOME="+home)
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return path
}

const authorTypespec = `core_type: author
triples:
  - core: author
    relation: published
    non_core: article
`

// denseBipartite is a fully dense publication graph: three authors who
// all published both articles. Every density is 1, so the full clique
// dominates any subset under the size-weighted score.
const denseBipartite = "1\t1\t101\tauthor\tpublished\tarticle\n" +
	"1\t1\t102\tauthor\tpublished\tarticle\n" +
	"1\t2\t101\tauthor\tpublished\tarticle\n" +
	"1\t2\t102\tauthor\tpublished\tarticle\n" +
	"1\t3\t101\tauthor\tpublished\tarticle\n" +
	"1\t3\t102\tauthor\tpublished\tarticle\n"

func TestVersionCommand(t *testing.T) {
	home := t.TempDir()
	stdout, _, err := runCLI(t, home, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "trawl version 1.0.0") {
		t.Errorf("unexpected version output: %q", stdout)
	}

	// version must not create a config file as a side effect
	if _, err := os.Stat(filepath.Join(home, ".trawl")); !os.IsNotExist(err) {
		t.Errorf("version command created %s", filepath.Join(home, ".trawl"))
	}
}

func TestMineShortOutput(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	spec := writeFixture(t, dir, "typespec.yaml", authorTypespec)
	edges := writeFixture(t, dir, "edges.tsv", denseBipartite)

	stdout, stderr, err := runCLI(t, home, "mine", "--typespec", spec, edges)
	if err != nil {
		t.Fatalf("mine failed: %v\nstderr: %s", err, stderr)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("want 1 output row, got %d: %q", len(lines), stdout)
	}
	fields := strings.Split(lines[0], "\t")
	if len(fields) != 8 {
		t.Fatalf("want 8 columns, got %d: %q", len(fields), lines[0])
	}
	if fields[0] != "1" {
		t.Errorf("graph id = %q, want 1", fields[0])
	}
	// alpha 0.5 over 3 core members at density 1: 0.5*3 + 0.5*1
	if fields[1] != "2" {
		t.Errorf("score = %q, want 2", fields[1])
	}
	if fields[2] != "3" || fields[3] != "2" {
		t.Errorf("counts = %q/%q, want 3/2", fields[2], fields[3])
	}
	if fields[4] != "1 2 3" {
		t.Errorf("core members = %q, want \"1 2 3\"", fields[4])
	}
	if fields[5] != "101 102" {
		t.Errorf("non-core members = %q, want \"101 102\"", fields[5])
	}
	if fields[7] != "1" {
		t.Errorf("global density = %q, want 1", fields[7])
	}
}

func TestMineLongOutput(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	spec := writeFixture(t, dir, "typespec.yaml", authorTypespec)
	edges := writeFixture(t, dir, "edges.tsv", denseBipartite)

	stdout, stderr, err := runCLI(t, home, "mine", "--typespec", spec, "--format", "long", edges)
	if err != nil {
		t.Fatalf("mine failed: %v\nstderr: %s", err, stderr)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("want 5 member rows, got %d: %q", len(lines), stdout)
	}
	cliqueIDs := make(map[string]bool)
	var authors, articles int
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			t.Fatalf("want 4 columns, got %d: %q", len(fields), line)
		}
		cliqueIDs[fields[1]] = true
		switch fields[3] {
		case "author":
			authors++
		case "article":
			articles++
		default:
			t.Errorf("unexpected member type %q in %q", fields[3], line)
		}
	}
	if len(cliqueIDs) != 1 {
		t.Errorf("members span %d clique ids, want 1", len(cliqueIDs))
	}
	if authors != 3 || articles != 2 {
		t.Errorf("got %d authors and %d articles, want 3 and 2", authors, articles)
	}
}

func TestMineJSONOutput(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	spec := writeFixture(t, dir, "typespec.yaml", authorTypespec)
	edges := writeFixture(t, dir, "edges.tsv", denseBipartite)

	stdout, stderr, err := runCLI(t, home, "mine", "--typespec", spec, "--format", "json", edges)
	if err != nil {
		t.Fatalf("mine failed: %v\nstderr: %s", err, stderr)
	}

	var doc struct {
		GraphID    int64  `json:"graph_id"`
		StopReason string `json:"stop_reason"`
		Best       *struct {
			CliqueID  string  `json:"clique_id"`
			CoreNodes []int64 `json:"core_nodes"`
		} `json:"best"`
	}
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		t.Fatalf("output is not a JSON document: %v\n%s", err, stdout)
	}
	if doc.GraphID != 1 {
		t.Errorf("graph_id = %d, want 1", doc.GraphID)
	}
	if doc.Best == nil || doc.Best.CliqueID == "" {
		t.Fatalf("document has no best clique: %s", stdout)
	}
	if len(doc.Best.CoreNodes) != 3 {
		t.Errorf("best clique has %d core nodes, want 3", len(doc.Best.CoreNodes))
	}
	if doc.StopReason == "epoch_limit" {
		t.Error("a fully dense five-node graph should stop before the epoch limit")
	}
}

func TestMineRejectsMalformedTypespec(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	spec := writeFixture(t, dir, "typespec.yaml", "core_type: \"au thor\"\ntriples: []\n")
	edges := writeFixture(t, dir, "edges.tsv", "")

	_, stderr, err := runCLI(t, home, "mine", "--typespec", spec, edges)
	if err == nil {
		t.Fatal("mine accepted a type name with a space")
	}
	if !strings.Contains(stderr, "invalid type name") {
		t.Errorf("stderr does not explain the rejection: %q", stderr)
	}
}

func TestFeaturizeCommand(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	edges := writeFixture(t, dir, "simple.tsv",
		"g1\t1\t2\ng1\t2\t3\ng1\t1\t3\n")

	stdout, stderr, err := runCLI(t, home, "featurize", edges)
	if err != nil {
		t.Fatalf("featurize failed: %v\nstderr: %s", err, stderr)
	}

	line := strings.TrimRight(stdout, "\n")
	name, payload, found := strings.Cut(line, "\t")
	if !found {
		t.Fatalf("output row is not name<TAB>json: %q", line)
	}
	if name != "g1" {
		t.Errorf("graph name = %q, want g1", name)
	}
	var feats map[string]float64
	if err := json.Unmarshal([]byte(payload), &feats); err != nil {
		t.Fatalf("features are not JSON: %v\n%s", err, payload)
	}
	if feats["num_nodes"] != 3 || feats["num_edges"] != 3 {
		t.Errorf("triangle features = %v, want 3 nodes and 3 edges", feats)
	}
	if _, ok := feats["transitivity"]; !ok {
		t.Errorf("features missing transitivity: %v", feats)
	}
}

func TestComponentsCommand(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	edges := writeFixture(t, dir, "simple.tsv",
		"g1\t1\t2\ng1\t3\t4\n")

	stdout, stderr, err := runCLI(t, home, "components", edges)
	if err != nil {
		t.Fatalf("components failed: %v\nstderr: %s", err, stderr)
	}

	want := "g1\t0\t1\ng1\t0\t2\ng1\t1\t3\ng1\t1\t4\n"
	if stdout != want {
		t.Errorf("components output = %q, want %q", stdout, want)
	}
}

func TestConfigFlagOverride(t *testing.T) {
	home := t.TempDir()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	spec := writeFixture(t, dir, "typespec.yaml", authorTypespec)
	edges := writeFixture(t, dir, "edges.tsv", denseBipartite)

	_, stderr, err := runCLI(t, home, "--config", cfgPath, "mine", "--typespec", spec, edges)
	if err != nil {
		t.Fatalf("mine with --config failed: %v\nstderr: %s", err, stderr)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("first run did not create %s: %v", cfgPath, err)
	}
	if _, err := os.Stat(filepath.Join(home, ".trawl", "trawl.yaml")); !os.IsNotExist(err) {
		t.Error("--config run still wrote the default config path")
	}
}
