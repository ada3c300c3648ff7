package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliRepo is a scratch repository driven through the root command.
type cliRepo struct {
	t   *testing.T
	dir string
}

func newCLIRepo(t *testing.T) *cliRepo {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(dir)
	c := &cliRepo{t: t, dir: dir}
	c.mustRun("init", "--name", "tester", "--email", "tester@example.com")
	return c
}

// run executes one command line and returns stdout and stderr.
func (c *cliRepo) run(args ...string) (string, string, error) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (c *cliRepo) mustRun(args ...string) string {
	c.t.Helper()
	out, errOut, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("notesync %s: %v\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), err, out, errOut)
	}
	return out
}

func (c *cliRepo) write(rel, content string) {
	c.t.Helper()
	path := filepath.Join(c.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.t.Fatalf("MkdirAll(%s): %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		c.t.Fatalf("WriteFile(%s): %v", rel, err)
	}
}

func (c *cliRepo) read(rel string) string {
	c.t.Helper()
	data, err := os.ReadFile(filepath.Join(c.dir, filepath.FromSlash(rel)))
	if err != nil {
		c.t.Fatalf("ReadFile(%s): %v", rel, err)
	}
	return string(data)
}

func (c *cliRepo) commit(msg string, files map[string]string) {
	c.t.Helper()
	paths := make([]string, 0, len(files))
	for p, content := range files {
		c.write(p, content)
		paths = append(paths, p)
	}
	c.mustRun(append([]string{"add"}, paths...)...)
	c.mustRun("commit", "-m", msg)
}

func TestVersionCmd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	c := &cliRepo{t: t}
	if out := c.mustRun("version"); !strings.HasPrefix(out, "notesync ") {
		t.Fatalf("version output = %q", out)
	}
}

func TestInitAddCommitLog(t *testing.T) {
	c := newCLIRepo(t)
	if _, err := os.Stat(filepath.Join(c.dir, ".notesync", "config.toml")); err != nil {
		t.Fatalf("init did not write the repository config: %v", err)
	}
	if out := c.mustRun("log"); !strings.Contains(out, "no commits yet") {
		t.Fatalf("log on empty repo = %q", out)
	}

	c.write("notes/today.md", "buy milk\n")
	c.mustRun("add", "notes")
	out := c.mustRun("commit", "-m", "first note")
	if !strings.HasPrefix(out, "[main ") || !strings.Contains(out, "first note") {
		t.Fatalf("commit output = %q", out)
	}

	out = c.mustRun("log", "--oneline")
	if !strings.Contains(out, "(HEAD -> main) first note") {
		t.Fatalf("log output = %q", out)
	}
	out = c.mustRun("log")
	if !strings.Contains(out, "Author: tester <tester@example.com>") {
		t.Fatalf("log output = %q", out)
	}
}

func TestCommitRequiresMessage(t *testing.T) {
	c := newCLIRepo(t)
	c.write("a.md", "a")
	c.mustRun("add", "a.md")
	if _, _, err := c.run("commit"); err == nil || !strings.Contains(err.Error(), "message is required") {
		t.Fatalf("commit without -m err = %v", err)
	}
}

func TestStatusCmd(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"keep.md": "keep", "edit.md": "edit"})
	c.write("edit.md", "edited")
	c.write("draft.md", "draft")
	c.write("keep.md", "staged change")
	c.mustRun("add", "keep.md")

	out := c.mustRun("status")
	for _, want := range []string{"on main", "staged:\n  M keep.md", "unstaged:\n  M edit.md", "untracked:\n  draft.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out = c.mustRun("status", "--short")
	for _, want := range []string{" M edit.md", "M  keep.md", "?? draft.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("short status missing %q:\n%s", want, out)
		}
	}
}

func TestBranchTagCheckoutReset(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("one", map[string]string{"a.md": "1"})
	c.mustRun("tag", "v1")
	c.mustRun("branch", "side")
	c.commit("two", map[string]string{"a.md": "2"})

	if out := c.mustRun("branch"); out != "* main\n  side\n" {
		t.Fatalf("branch list = %q", out)
	}
	if out := c.mustRun("tag"); out != "v1\n" {
		t.Fatalf("tag list = %q", out)
	}

	out := c.mustRun("checkout", "--dry-run", "side")
	if !strings.Contains(out, "update a.md") {
		t.Fatalf("dry run output = %q", out)
	}
	if got := c.read("a.md"); got != "2" {
		t.Fatalf("dry run touched a.md: %q", got)
	}

	c.mustRun("checkout", "side")
	if got := c.read("a.md"); got != "1" {
		t.Fatalf("a.md after checkout side = %q", got)
	}
	c.mustRun("checkout", "main")

	c.write("a.md", "dirty")
	if _, _, err := c.run("checkout", "side"); err == nil || !strings.Contains(err.Error(), "overwrite local changes") {
		t.Fatalf("dirty checkout err = %v", err)
	}

	out = c.mustRun("reset", "--hard", "v1")
	if !strings.Contains(out, "HEAD is now at") {
		t.Fatalf("reset output = %q", out)
	}
	if got := c.read("a.md"); got != "1" {
		t.Fatalf("a.md after reset --hard = %q", got)
	}
	if _, _, err := c.run("reset", "--soft", "--hard"); err == nil {
		t.Fatal("conflicting reset modes accepted")
	}

	out = c.mustRun("reflog", "--limit", "1")
	if !strings.Contains(out, "reset: moving to") {
		t.Fatalf("reflog = %q", out)
	}
}

func TestResetPathsCmd(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"a.md": "1"})
	c.write("a.md", "2")
	c.mustRun("add", "a.md")
	c.mustRun("reset", "a.md")
	if out := c.mustRun("status", "--short"); out != " M a.md\n" {
		t.Fatalf("status after unstage = %q", out)
	}
}

func TestCheckoutRestore(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"a.md": "1", "b.md": "2"})
	if err := os.Remove(filepath.Join(c.dir, "b.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	out := c.mustRun("checkout", "--restore")
	if !strings.Contains(out, "restored 1 file(s)") {
		t.Fatalf("restore output = %q", out)
	}
	if got := c.read("b.md"); got != "2" {
		t.Fatalf("b.md = %q", got)
	}
}

func setupCLIMerge(t *testing.T) *cliRepo {
	t.Helper()
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"a.md": "line1\nline2\nline3\n"})
	c.mustRun("branch", "feature")
	c.commit("main edit", map[string]string{"a.md": "main1\nline2\nline3\n"})
	c.mustRun("checkout", "feature")
	c.commit("feature edit", map[string]string{"a.md": "feat1\nline2\nline3\n"})
	c.mustRun("checkout", "main")
	return c
}

func TestMergeCmdUnionPolicy(t *testing.T) {
	c := setupCLIMerge(t)
	out := c.mustRun("merge", "feature", "--policy", "union")
	if !strings.Contains(out, "HEAD is now at") {
		t.Fatalf("merge output = %q", out)
	}
	if got := c.read("a.md"); got != "main1\nfeat1\nline2\nline3\n" {
		t.Fatalf("a.md = %q", got)
	}
	if out := c.mustRun("log", "--oneline", "-n", "1"); !strings.Contains(out, "Merge conflict") {
		t.Fatalf("log = %q", out)
	}
}

func TestMergeCmdManualThenResolve(t *testing.T) {
	c := setupCLIMerge(t)
	out := c.mustRun("merge", "feature", "--policy", "manual")
	if !strings.Contains(out, "U a.md") {
		t.Fatalf("merge output = %q", out)
	}
	if !strings.Contains(c.read("a.md"), "<<<<<<< HEAD") {
		t.Fatalf("a.md has no conflict markers: %q", c.read("a.md"))
	}
	if out := c.mustRun("status"); !strings.Contains(out, "conflicts:\n  U a.md") {
		t.Fatalf("status = %q", out)
	}

	c.mustRun("resolve", "--policy", "theirs")
	if got := c.read("a.md"); got != "feat1\nline2\nline3\n" {
		t.Fatalf("a.md = %q", got)
	}
	if _, _, err := c.run("resolve"); err == nil {
		t.Fatal("resolve without a merge in progress succeeded")
	}
}

func TestMergeCmdAbort(t *testing.T) {
	c := setupCLIMerge(t)
	c.mustRun("merge", "feature", "--policy", "manual")
	if out := c.mustRun("merge", "--abort"); !strings.Contains(out, "merge aborted") {
		t.Fatalf("abort output = %q", out)
	}
	if got := c.read("a.md"); got != "main1\nline2\nline3\n" {
		t.Fatalf("a.md after abort = %q", got)
	}
}

func TestMergeCmdPolicyFromRepoConfig(t *testing.T) {
	c := setupCLIMerge(t)
	c.write(".notesync/config.toml", "[merge]\npolicy = \"theirs\"\n")
	c.mustRun("merge", "feature")
	if got := c.read("a.md"); got != "feat1\nline2\nline3\n" {
		t.Fatalf("a.md = %q", got)
	}
}

func TestMergeCmdRejectsCommitHash(t *testing.T) {
	c := setupCLIMerge(t)
	fields := strings.Fields(c.mustRun("log", "feature", "--oneline", "-n", "1"))
	if len(fields) == 0 {
		t.Fatal("log printed nothing")
	}
	out, _, err := c.run("merge", fields[0])
	if err == nil {
		t.Fatalf("merge of a commit hash succeeded: %q", out)
	}
	if strings.Contains(out, "merging") {
		t.Fatalf("merge announced before failing: %q", out)
	}
	if got := c.read("a.md"); got != "main1\nline2\nline3\n" {
		t.Fatalf("a.md = %q", got)
	}
}

func TestHistoryCmd(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("c1", map[string]string{"notes/a.md": "v1"})
	c.commit("c2", map[string]string{"other.md": "x"})
	c.commit("c3", map[string]string{"notes/a.md": "v2"})

	out, errOut, err := c.run("history", "notes/a.md", "--oneline", "--stats")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], " c3") || !strings.HasSuffix(lines[1], "(created) c1") {
		t.Fatalf("history output = %q", out)
	}
	if !strings.Contains(errOut, "save/ok 2") {
		t.Fatalf("stats = %q", errOut)
	}

	if out := c.mustRun("history", "notes/a.md", "--oneline", "-n", "1"); strings.Count(out, "\n") != 1 {
		t.Fatalf("limited history = %q", out)
	}
	if out := c.mustRun("history", "missing.md"); out != "" {
		t.Fatalf("history of untouched path = %q", out)
	}
}

func TestDiffCmd(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"a.md": "one\n", "b.md": "gone\n"})
	c.write("a.md", "two\n")
	if err := os.Remove(filepath.Join(c.dir, "b.md")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	c.mustRun("add", "a.md", "b.md")
	c.mustRun("commit", "-m", "edit")

	if out := c.mustRun("diff", "--name-status"); out != "M\ta.md\nD\tb.md\n" {
		t.Fatalf("name-status = %q", out)
	}
	if out := c.mustRun("diff", "--stat"); !strings.Contains(out, "2 changed") {
		t.Fatalf("stat = %q", out)
	}
	out := c.mustRun("diff")
	for _, want := range []string{"--- a/a.md", "+++ b/a.md", "-one", "+two", "+++ /dev/null"} {
		if !strings.Contains(out, want) {
			t.Errorf("patch missing %q:\n%s", want, out)
		}
	}
}

func TestCacheClearWithSQLiteBackend(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("c1", map[string]string{"a.md": "1"})
	c.commit("c2", map[string]string{"a.md": "2"})
	t.Setenv("NOTESYNC_CACHE_BACKEND", "sqlite")
	t.Setenv("NOTESYNC_CACHE_DSN", filepath.Join(t.TempDir(), "cache.db"))

	c.mustRun("history", "a.md")
	out := c.mustRun("cache", "clear")
	if !strings.Contains(out, "cleared sqlite diff cache") {
		t.Fatalf("cache clear output = %q", out)
	}

	t.Setenv("NOTESYNC_CACHE_BACKEND", "carrier-pigeon")
	if _, _, err := c.run("history", "a.md"); err == nil || !strings.Contains(err.Error(), "unknown cache backend") {
		t.Fatalf("bad backend err = %v", err)
	}
}

func TestGcCmd(t *testing.T) {
	c := newCLIRepo(t)
	c.commit("base", map[string]string{"a.md": "1"})
	c.write("a.md", "2")
	c.mustRun("add", "a.md")
	c.mustRun("reset", "a.md")

	out := c.mustRun("gc", "--dry-run")
	if !strings.Contains(out, "would prune 1 unreachable object(s)") {
		t.Fatalf("gc dry run = %q", out)
	}
	if out := c.mustRun("gc"); !strings.Contains(out, "pruned 1") {
		t.Fatalf("gc = %q", out)
	}
	if out := c.mustRun("gc"); !strings.Contains(out, "nothing to prune") {
		t.Fatalf("second gc = %q", out)
	}
}
