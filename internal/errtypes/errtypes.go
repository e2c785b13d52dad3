// Package errtypes holds the host's error taxonomy: configuration,
// sandbox construction, RPC transport, child-process death,
// connector-reported failures, template deferral, and version mismatch.
// Every non-fatal case (template deferral) is represented separately so
// callers never need to string-match error text to branch on it.
package errtypes

import (
	"errors"
	"fmt"

	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

// ErrConfiguration wraps malformed autoschematic.ron / missing env /
// invalid connector spec errors. Fatal to the invoking command.
type ErrConfiguration struct {
	Detail string
	Err    error
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Detail, e.Err)
}
func (e *ErrConfiguration) Unwrap() error { return e.Err }

// ErrSandbox wraps mount/clone/pivot_root construction failures. Fatal to
// the affected connector spawn.
type ErrSandbox struct {
	Stage string
	Err   error
}

func (e *ErrSandbox) Error() string {
	return fmt.Sprintf("sandbox construction failed at %s: %v", e.Stage, e.Err)
}
func (e *ErrSandbox) Unwrap() error { return e.Err }

// ErrTransport wraps socket/framing/deadline failures. Retryable on the
// next call; the handle remains usable if the child still lives.
type ErrTransport struct {
	Op  protocol.Op
	Err error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("rpc transport error during %s: %v", e.Op, e.Err)
}
func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrChildDied is surfaced when the still-alive check after a call finds
// the connector process gone; DumpContents is the content of its error
// dump file, if one was written.
type ErrChildDied struct {
	Shortname    string
	DumpContents string
}

func (e *ErrChildDied) Error() string {
	if e.DumpContents == "" {
		return fmt.Sprintf("connector %q process exited without any error dump", e.Shortname)
	}
	return fmt.Sprintf("connector %q process exited: %s", e.Shortname, e.DumpContents)
}

// ConnectorError wraps a structured error returned by the connector
// itself, with the op name and arguments as context.
type ConnectorError = protocol.ConnectorError

// ErrDeferred is not a failure: it records which outputs a resource is
// waiting on. Callers surface it as "missing_outputs" rather than abort.
type ErrDeferred struct {
	Reads []protocol.ReadOutput
}

func (e *ErrDeferred) Error() string {
	return fmt.Sprintf("deferred: waiting on %d output(s)", len(e.Reads))
}

// InvalidConnectorVersionError fires when a connector's version()
// response doesn't match the host, and AUTOSCHEMATIC_NO_VERSION_CHECK is
// unset.
type InvalidConnectorVersionError struct {
	Shortname string
	ConnVer   string
	HostVer   string
}

func (e *InvalidConnectorVersionError) Error() string {
	return fmt.Sprintf("connector %q version %s does not match host version %s", e.Shortname, e.ConnVer, e.HostVer)
}

// ErrOutputCycle fires when two consecutive plan passes over the same
// apply run report an identical, non-empty set of deferred output keys:
// a reference cycle no number of further passes can resolve.
var ErrOutputCycle = errors.New("output reference cycle: deferred set did not shrink across passes")

// ErrSafetyLocked is returned by any mutating call while the safety lock
// sentinel file is present.
var ErrSafetyLocked = errors.New("safety lock is engaged: refusing mutating operation")
