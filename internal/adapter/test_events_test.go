package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	m "gooze.dev/pkg/mutexec/internal/model"
)

const passingRun = `{"Action":"start","Package":"example.com/calc"}
{"Action":"run","Package":"example.com/calc","Test":"TestMax"}
{"Action":"output","Package":"example.com/calc","Test":"TestMax","Output":"=== RUN   TestMax\n"}
{"Action":"pass","Package":"example.com/calc","Test":"TestMax","Elapsed":0.015}
{"Action":"run","Package":"example.com/calc","Test":"TestMin"}
{"Action":"run","Package":"example.com/calc","Test":"TestMin/negative"}
{"Action":"pass","Package":"example.com/calc","Test":"TestMin/negative","Elapsed":0.01}
{"Action":"pass","Package":"example.com/calc","Test":"TestMin","Elapsed":0.025}
{"Action":"skip","Package":"example.com/calc","Test":"TestSlow","Elapsed":0}
{"Action":"pass","Package":"example.com/calc","Elapsed":0.3}
`

const killedRun = `{"Action":"run","Package":"example.com/calc","Test":"TestMax"}
{"Action":"output","Package":"example.com/calc","Test":"TestMax/equal","Output":"    calc_test.go:12: got 5, want 10\n"}
{"Action":"fail","Package":"example.com/calc","Test":"TestMax/equal","Elapsed":0}
{"Action":"fail","Package":"example.com/calc","Test":"TestMax","Elapsed":0.001}
{"Action":"fail","Package":"example.com/calc","Elapsed":0.2}
`

const buildFailedRun = `# example.com/calc
calc.go:4:7: syntax error: unexpected >=
{"Action":"output","Package":"example.com/calc","Output":"FAIL\texample.com/calc [build failed]\n"}
{"Action":"fail","Package":"example.com/calc","Elapsed":0}
`

func TestParseTestEvents_Passing(t *testing.T) {
	run := parseTestEvents([]byte(passingRun))

	require.Len(t, run.tests, 3)
	assert.Equal(t, m.TestResult{
		ID:        "example.com/calc.TestMax",
		Name:      "TestMax",
		Status:    m.TestPassed,
		TimeSpent: 15 * time.Millisecond,
	}, run.tests[0])
	assert.Equal(t, "example.com/calc.TestMin", run.tests[1].ID)
	assert.Equal(t, m.TestSkipped, run.tests[2].Status)
	assert.Equal(t, 2, run.completed())
	assert.Empty(t, run.failed())
	assert.Empty(t, run.failedPackages)
}

func TestParseTestEvents_Killed(t *testing.T) {
	run := parseTestEvents([]byte(killedRun))

	failed := run.failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "example.com/calc.TestMax", failed[0].ID)
	assert.Contains(t, failed[0].FailureMessage, "got 5, want 10")
	assert.Empty(t, run.failedPackages, "a package failing because of a test is not a build failure")
}

func TestParseTestEvents_BuildFailed(t *testing.T) {
	run := parseTestEvents([]byte(buildFailedRun))

	assert.Empty(t, run.tests)
	assert.Equal(t, []string{"example.com/calc"}, run.failedPackages)
	assert.Contains(t, run.packageOutput("example.com/calc"), "build failed")
}

func TestSplitTestID(t *testing.T) {
	pkg, name := splitTestID("gooze.dev/pkg/calc.TestMax")
	assert.Equal(t, "gooze.dev/pkg/calc", pkg)
	assert.Equal(t, "TestMax", name)

	pkg, name = splitTestID("TestMax")
	assert.Empty(t, pkg)
	assert.Equal(t, "TestMax", name)
}

func TestTestFilterArgs(t *testing.T) {
	packages, expr := testFilterArgs([]string{
		"example.com/calc.TestMin",
		"example.com/calc.TestMax",
		"example.com/calc/sub.TestMax",
	})

	assert.Equal(t, []string{"example.com/calc", "example.com/calc/sub"}, packages)
	assert.Equal(t, "^(TestMax|TestMin)$", expr)
}
