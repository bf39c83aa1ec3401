package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	m "gooze.dev/pkg/mutexec/internal/model"
)

// testEvent is one line of `go test -json` output (see `go doc test2json`).
type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// testRun is the digest of a `go test -json` invocation.
type testRun struct {
	tests []m.TestResult
	// failedPackages lists packages that failed without a failing test,
	// typically because they did not compile.
	failedPackages []string
	output         map[string]*strings.Builder
}

func (r testRun) failed() []m.TestResult {
	var failed []m.TestResult

	for _, test := range r.tests {
		if test.Status == m.TestFailed {
			failed = append(failed, test)
		}
	}

	return failed
}

func (r testRun) completed() int {
	count := 0

	for _, test := range r.tests {
		if test.Status != m.TestSkipped {
			count++
		}
	}

	return count
}

func (r testRun) packageOutput(pkg string) string {
	if builder, ok := r.output[pkg]; ok {
		return strings.TrimSpace(builder.String())
	}

	return ""
}

// testID identifies a top level test across packages.
func testID(pkg, test string) string {
	return pkg + "." + test
}

// splitTestID is the inverse of testID. Test names never contain dots while
// import paths may.
func splitTestID(id string) (string, string) {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return "", id
	}

	return id[:idx], id[idx+1:]
}

// parseTestEvents digests test2json output. Subtests are folded into their top
// level test; non JSON lines (build output) are ignored.
func parseTestEvents(data []byte) testRun {
	run := testRun{output: map[string]*strings.Builder{}}

	byID := map[string]int{}
	failedTests := map[string]bool{}
	failedPackages := map[string]bool{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var event testEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}

		top, _, isSubtest := strings.Cut(event.Test, "/")

		switch {
		case event.Test == "":
			switch event.Action {
			case "output":
				builder, ok := run.output[event.Package]
				if !ok {
					builder = &strings.Builder{}
					run.output[event.Package] = builder
				}

				builder.WriteString(event.Output)
			case "fail":
				failedPackages[event.Package] = true
			}
		case event.Action == "output":
			builder, ok := run.output[testID(event.Package, top)]
			if !ok {
				builder = &strings.Builder{}
				run.output[testID(event.Package, top)] = builder
			}

			builder.WriteString(event.Output)
		case isSubtest:
			continue
		case event.Action == "pass" || event.Action == "fail" || event.Action == "skip":
			id := testID(event.Package, event.Test)
			result := m.TestResult{
				ID:        id,
				Name:      event.Test,
				Status:    testStatus(event.Action),
				TimeSpent: time.Duration(math.Round(event.Elapsed * float64(time.Second))),
			}

			if result.Status == m.TestFailed {
				failedTests[event.Package] = true
			}

			if idx, ok := byID[id]; ok {
				run.tests[idx] = result
				continue
			}

			byID[id] = len(run.tests)
			run.tests = append(run.tests, result)
		}
	}

	for i := range run.tests {
		if run.tests[i].Status == m.TestFailed {
			run.tests[i].FailureMessage = run.packageOutput(run.tests[i].ID)
		}
	}

	for pkg := range failedPackages {
		if !failedTests[pkg] {
			run.failedPackages = append(run.failedPackages, pkg)
		}
	}

	sort.Strings(run.failedPackages)

	return run
}

func testStatus(action string) m.TestStatus {
	switch action {
	case "fail":
		return m.TestFailed
	case "skip":
		return m.TestSkipped
	default:
		return m.TestPassed
	}
}

// testFilterArgs builds the package list and -run expression selecting ids.
func testFilterArgs(ids []string) ([]string, string) {
	packages := []string{}
	seenPackages := map[string]bool{}
	names := []string{}
	seenNames := map[string]bool{}

	for _, id := range ids {
		pkg, name := splitTestID(id)
		if pkg != "" && !seenPackages[pkg] {
			seenPackages[pkg] = true
			packages = append(packages, pkg)
		}

		if !seenNames[name] {
			seenNames[name] = true
			names = append(names, regexp.QuoteMeta(name))
		}
	}

	sort.Strings(packages)
	sort.Strings(names)

	return packages, "^(" + strings.Join(names, "|") + ")$"
}
