// Package healthcheck runs the same pre-flight checks the Agent Loop
// gates every tick on, plus the deeper LM/executor checks an operator
// runs on demand. Grounded on the teacher's doctor.go report shape
// (Diagnosis/CheckResult), rebuilt against this runtime's own
// collaborators instead of a SQL-backed persistence layer.
package healthcheck

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/clawd/internal/ctxassembler"
	"github.com/basket/clawd/internal/executor"
	"github.com/basket/clawd/internal/lmclient"
)

// Status is one check's outcome.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
)

// Check is the result of a single named check.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// SystemInfo records the runtime environment a report was taken on.
type SystemInfo struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
	Go   string `json:"go_version"`
}

// Report is the full health check output.
type Report struct {
	Timestamp time.Time  `json:"timestamp"`
	System    SystemInfo `json:"system"`
	Checks    []Check    `json:"checks"`
}

// OK reports whether every check in the report passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// PreFlightOK reports whether the subset of checks the Agent Loop gates
// every tick on (agent_home, boot_files, logs_writable) all passed,
// matching the source's pre_flight_check()'s required-checks subset.
func (r Report) PreFlightOK() bool {
	required := map[string]bool{"agent_home": true, "boot_files": true, "logs_writable": true}
	for _, c := range r.Checks {
		if required[c.Name] && c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Services bundles the collaborators a full Run needs beyond the
// filesystem. Either may be nil to skip that check (used by the Agent
// Loop's cheaper per-tick pre-flight, which only needs the filesystem
// checks).
type Services struct {
	LLM  lmclient.Client
	Exec executor.Executor
}

var bootFiles = []string{"identity.md", "invariants.md", "operating_principles.md"}

// Run executes every check and returns the assembled report. agentHome
// is the root directory; svc's fields may be left zero to skip the
// corresponding checks.
func Run(ctx context.Context, agentHome string, svc Services) Report {
	r := Report{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:   runtime.GOOS,
			Arch: runtime.GOARCH,
			Go:   runtime.Version(),
		},
	}

	r.Checks = append(r.Checks, checkAgentHome(agentHome))
	r.Checks = append(r.Checks, checkBootFiles(agentHome))
	r.Checks = append(r.Checks, checkLogsWritable(agentHome))
	r.Checks = append(r.Checks, checkInvariants(agentHome))

	if svc.LLM != nil {
		r.Checks = append(r.Checks, checkLLM(ctx, svc.LLM))
	}
	if svc.Exec != nil {
		r.Checks = append(r.Checks, checkExecutor(ctx, svc.Exec))
	}

	return r
}

func checkAgentHome(agentHome string) Check {
	info, err := os.Stat(agentHome)
	if err != nil || !info.IsDir() {
		return Check{Name: "agent_home", Status: StatusFail, Message: "Agent home does not exist: " + agentHome}
	}
	return Check{Name: "agent_home", Status: StatusPass, Message: "Agent home: " + agentHome}
}

func checkBootFiles(agentHome string) Check {
	var missing []string
	for _, f := range bootFiles {
		if _, err := os.Stat(filepath.Join(agentHome, "boot", f)); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Check{Name: "boot_files", Status: StatusFail, Message: "Missing boot files: " + joinComma(missing)}
	}
	return Check{Name: "boot_files", Status: StatusPass, Message: "Boot files present"}
}

func checkLogsWritable(agentHome string) Check {
	dir := filepath.Join(agentHome, "logs", "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "logs_writable", Status: StatusFail, Message: "Cannot create logs directory: " + err.Error()}
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return Check{Name: "logs_writable", Status: StatusFail, Message: "Cannot write to logs: " + err.Error()}
	}
	os.Remove(probe)
	return Check{Name: "logs_writable", Status: StatusPass, Message: "Logs directory writable"}
}

func checkInvariants(agentHome string) Check {
	hash := ctxassembler.New(agentHome, 1).InvariantsHash()
	if hash == "" {
		return Check{Name: "invariants", Status: StatusWarn, Message: "Cannot read invariants"}
	}
	display := hash
	if len(display) > 16 {
		display = display[:16]
	}
	return Check{Name: "invariants", Status: StatusPass, Message: "Invariants hash: " + display + "..."}
}

func checkLLM(ctx context.Context, client lmclient.Client) Check {
	if err := client.Health(ctx); err != nil {
		return Check{Name: "llm_connection", Status: StatusFail, Message: "LLM unreachable: " + err.Error()}
	}
	return Check{Name: "llm_connection", Status: StatusPass, Message: "LLM reachable"}
}

func checkExecutor(ctx context.Context, exec executor.Executor) Check {
	res, err := exec.Execute(ctx, "echo", []string{"health"}, "", 5*time.Second)
	if err != nil {
		return Check{Name: "executor", Status: StatusFail, Message: "Executor failed: " + err.Error()}
	}
	if res.ExitCode != 0 {
		return Check{Name: "executor", Status: StatusFail, Message: "Executor smoke test exited nonzero"}
	}
	return Check{Name: "executor", Status: StatusPass, Message: "Executor smoke test passed"}
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}
