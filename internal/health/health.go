// Package health converts raw probe observations and connector states
// into health verdicts. Evaluation is pure: no network access, no state.
package health

import (
	"fmt"
	"net/http"

	"github.com/good-yellow-bee/kafkawatch/internal/connect"
	"github.com/good-yellow-bee/kafkawatch/internal/probe"
)

// Severity is the evaluated severity of a subject.
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// rank orders severities for escalation comparison.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// WorseThan reports whether s is a more severe state than other.
func (s Severity) WorseThan(other Severity) bool {
	return s.rank() > other.rank()
}

// Reason is the machine-readable cause of a non-OK verdict.
type Reason string

const (
	ReasonHealthy             Reason = "HEALTHY"
	ReasonTargetUnreachable   Reason = "TARGET_UNREACHABLE"
	ReasonAPIUnhealthy        Reason = "API_UNHEALTHY"
	ReasonConnectorFailed     Reason = "CONNECTOR_FAILED"
	ReasonConnectorNotRunning Reason = "CONNECTOR_NOT_RUNNING"
	ReasonTaskFailed          Reason = "TASK_FAILED"
	ReasonTaskNotRunning      Reason = "TASK_NOT_RUNNING"
)

// Verdict is the evaluated health judgment for one subject in one cycle.
type Verdict struct {
	// Subject identifies what was judged: a target name, or
	// connect/<connector> or connect/<connector>/task-<id>.
	Subject  string
	Severity Severity
	Reason   Reason
	Message  string
}

// ConnectorSubject returns the subject id for a connector.
func ConnectorSubject(name string) string {
	return "connect/" + name
}

// TaskSubject returns the subject id for a connector task.
func TaskSubject(connector string, taskID int) string {
	return fmt.Sprintf("connect/%s/task-%d", connector, taskID)
}

// EvaluateTarget judges one target observation. Rules in priority
// order: unreachable TCP is always CRITICAL regardless of HTTP fields;
// a declared HTTP surface that is unreachable or answers outside
// 200-299 is CRITICAL; otherwise OK.
func EvaluateTarget(target probe.Target, obs probe.Observation) Verdict {
	if !obs.TCPReachable {
		return Verdict{
			Subject:  target.Name,
			Severity: SeverityCritical,
			Reason:   ReasonTargetUnreachable,
			Message:  fmt.Sprintf("%s is down: cannot connect to %s", target.Name, target.Addr()),
		}
	}

	if target.HasHTTP() {
		if !obs.HTTPReachable {
			return Verdict{
				Subject:  target.Name,
				Severity: SeverityCritical,
				Reason:   ReasonAPIUnhealthy,
				Message:  fmt.Sprintf("%s REST API at %s is not responding", target.Name, target.BaseURL()),
			}
		}
		if obs.HTTPStatus < http.StatusOK || obs.HTTPStatus >= http.StatusMultipleChoices {
			return Verdict{
				Subject:  target.Name,
				Severity: SeverityCritical,
				Reason:   ReasonAPIUnhealthy,
				Message:  fmt.Sprintf("%s REST API returned status %d", target.Name, obs.HTTPStatus),
			}
		}
	}

	return Verdict{
		Subject:  target.Name,
		Severity: SeverityOK,
		Reason:   ReasonHealthy,
		Message:  fmt.Sprintf("%s is running on %s", target.Name, target.Addr()),
	}
}

// EvaluateConnector judges a resolved connector and all of its tasks,
// returning one verdict per subject, connector first. FAILED is
// CRITICAL; any other non-RUNNING state (PAUSED, UNASSIGNED, UNKNOWN)
// is a degraded-but-not-emergency WARNING.
func EvaluateConnector(conn connect.Connector) []Verdict {
	verdicts := []Verdict{evaluateConnectorState(conn)}
	for _, task := range conn.Tasks {
		verdicts = append(verdicts, evaluateTaskState(conn.Name, task))
	}
	return verdicts
}

func evaluateConnectorState(conn connect.Connector) Verdict {
	subject := ConnectorSubject(conn.Name)

	switch {
	case conn.State == connect.StateFailed:
		return Verdict{
			Subject:  subject,
			Severity: SeverityCritical,
			Reason:   ReasonConnectorFailed,
			Message:  fmt.Sprintf("connector %q is in FAILED state", conn.Name),
		}
	case conn.State != connect.StateRunning:
		msg := fmt.Sprintf("connector %q is in %s state", conn.Name, conn.State)
		if conn.FetchErr != nil {
			msg = fmt.Sprintf("connector %q status could not be fetched: %v", conn.Name, conn.FetchErr)
		}
		return Verdict{
			Subject:  subject,
			Severity: SeverityWarning,
			Reason:   ReasonConnectorNotRunning,
			Message:  msg,
		}
	default:
		return Verdict{
			Subject:  subject,
			Severity: SeverityOK,
			Reason:   ReasonHealthy,
			Message:  fmt.Sprintf("connector %q is RUNNING", conn.Name),
		}
	}
}

func evaluateTaskState(connector string, task connect.Task) Verdict {
	subject := TaskSubject(connector, task.ID)

	switch {
	case task.State == connect.StateFailed:
		return Verdict{
			Subject:  subject,
			Severity: SeverityCritical,
			Reason:   ReasonTaskFailed,
			Message:  fmt.Sprintf("connector %q task %d is in FAILED state", connector, task.ID),
		}
	case task.State != connect.StateRunning:
		return Verdict{
			Subject:  subject,
			Severity: SeverityWarning,
			Reason:   ReasonTaskNotRunning,
			Message:  fmt.Sprintf("connector %q task %d is in %s state", connector, task.ID, task.State),
		}
	default:
		return Verdict{
			Subject:  subject,
			Severity: SeverityOK,
			Reason:   ReasonHealthy,
			Message:  fmt.Sprintf("connector %q task %d is RUNNING", connector, task.ID),
		}
	}
}
